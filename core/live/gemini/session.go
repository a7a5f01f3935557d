package gemini

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/live"
)

const closeWriteTimeout = 2 * time.Second

var _ live.Session = (*session)(nil)

type session struct {
	conn      *websocket.Conn
	callbacks live.Callbacks

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func newSession(conn *websocket.Conn, callbacks live.Callbacks) *session {
	return &session{
		conn:      conn,
		callbacks: callbacks,
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *session) SendAudioFrame(frame live.AudioFrame) error {
	return s.send(newAudioMessage(frame))
}

func (s *session) SendToolResponse(responses ...live.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return s.send(newToolResponseMessage(responses))
}

func (s *session) send(msg clientMessage) error {
	select {
	case <-s.closed:
		return live.ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := writeMessage(s.conn, msg); err != nil {
		return fmt.Errorf("failed to write to live session: %w", err)
	}
	return nil
}

// Close sends a normal closure and waits for the read loop to exit. Safe to
// call more than once.
func (s *session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		s.writeMu.Unlock()

		closeErr = s.conn.Close()
		<-s.done
	})
	if errors.Is(closeErr, websocket.ErrCloseSent) {
		return nil
	}
	return closeErr
}

func (s *session) readLoop() {
	defer close(s.done)
	defer s.callbacks.OnClose()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosing() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("live session read failed", "error", err)
				s.callbacks.OnError(fmt.Errorf("live session read failed: %w", err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			logger.Warn("dropping undecodable live message", "error", err)
			continue
		}
		if msg.GoAway != nil {
			logger.Info("live server announced disconnect", "time_left", msg.GoAway.TimeLeft)
		}
		for _, event := range msg.toEvents() {
			s.callbacks.OnMessage(event)
		}
	}
}

func (s *session) isClosing() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
