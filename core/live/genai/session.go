package genai

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/live"
	"google.golang.org/genai"
)

var _ live.Session = (*session)(nil)

type session struct {
	conn      *genai.Session
	callbacks live.Callbacks

	sendMu    sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *genai.Session, callbacks live.Callbacks) *session {
	return &session{conn: conn, callbacks: callbacks, done: make(chan struct{})}
}

func (s *session) SendAudioFrame(frame live.AudioFrame) error {
	if s.closing.Load() {
		return live.ErrSessionClosed
	}
	input, err := newRealtimeInput(frame)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.SendRealtimeInput(input); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

func (s *session) SendToolResponse(responses ...live.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	if s.closing.Load() {
		return live.ErrSessionClosed
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.SendToolResponse(newToolResponseInput(responses)); err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		err = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *session) receiveLoop() {
	defer close(s.done)
	defer s.callbacks.OnClose()

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if !s.closing.Load() && !isNormalClosure(err) {
				logger.Error("genai live receive failed", "error", err)
				s.callbacks.OnError(fmt.Errorf("live session receive failed: %w", err))
			}
			return
		}
		if msg.GoAway != nil {
			logger.Info("live server announced disconnect")
		}
		for _, event := range toEvents(msg) {
			s.callbacks.OnMessage(event)
		}
	}
}

// isNormalClosure reports whether the SDK surfaced a clean websocket close.
// The SDK dials with gorilla/websocket, so close errors keep that type.
func isNormalClosure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
