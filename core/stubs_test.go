package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type stubConnector struct {
	mu       sync.Mutex
	opens    int
	config   live.Config
	sessions []*stubSession

	err error
	// gate blocks Open until closed. Open gives up early on ctx unless
	// ignoreContext is set.
	gate          chan struct{}
	ignoreContext bool
	// beforeReturn runs after the session exists but before Open returns.
	beforeReturn func(session *stubSession)
}

func (c *stubConnector) Open(ctx context.Context, config live.Config, callbacks live.Callbacks) (live.Session, error) {
	if c.gate != nil {
		if c.ignoreContext {
			<-c.gate
		} else {
			select {
			case <-c.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	c.mu.Lock()
	c.opens++
	c.config = config
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	session := &stubSession{callbacks: callbacks.WithDefaults()}
	c.sessions = append(c.sessions, session)
	c.mu.Unlock()

	if c.beforeReturn != nil {
		c.beforeReturn(session)
	}
	return session, nil
}

func (c *stubConnector) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *stubConnector) lastSession() *stubSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

func (c *stubConnector) lastConfig() live.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

type stubSession struct {
	callbacks live.Callbacks

	mu        sync.Mutex
	frames    []live.AudioFrame
	responses []live.ToolResponse
	closes    int
}

func (s *stubSession) SendAudioFrame(frame live.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return live.ErrSessionClosed
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *stubSession) SendToolResponse(responses ...live.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
	return nil
}

// Close reports the close back through OnClose like a real transport does.
func (s *stubSession) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()

	if first {
		s.callbacks.OnClose()
	}
	return nil
}

func (s *stubSession) emit(remote ...events.Event) {
	for _, event := range remote {
		s.callbacks.OnMessage(event)
	}
}

func (s *stubSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *stubSession) sentResponses() []live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.ToolResponse(nil), s.responses...)
}

func (s *stubSession) sentFrames() []live.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.AudioFrame(nil), s.frames...)
}

type stubMicrophone struct {
	mu        sync.Mutex
	onSamples func([]float32)
	startErr  error
	closes    int
}

func (m *stubMicrophone) EncodingInfo() audio.EncodingInfo { return audio.EncodingInfo{} }

func (m *stubMicrophone) StartCapture(_ context.Context, onSamples func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.onSamples = onSamples
	return nil
}

func (m *stubMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *stubMicrophone) push(samples []float32) {
	m.mu.Lock()
	onSamples := m.onSamples
	m.mu.Unlock()
	if onSamples != nil {
		onSamples(samples)
	}
}

func (m *stubMicrophone) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type stubMicrophoneOpener struct {
	mu     sync.Mutex
	opened []*stubMicrophone
	err    error
}

func (o *stubMicrophoneOpener) OpenMicrophone(context.Context) (audio.Microphone, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	mic := &stubMicrophone{}
	o.opened = append(o.opened, mic)
	return mic, nil
}

func (o *stubMicrophoneOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func (o *stubMicrophoneOpener) last() *stubMicrophone {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return nil
	}
	return o.opened[len(o.opened)-1]
}

type stubOutput struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []audio.PlaybackUnit
	onEnded   map[uint64]func()
	stopped   []uint64
	closes    int
}

func newStubOutput() *stubOutput {
	return &stubOutput{onEnded: make(map[uint64]func())}
}

func (o *stubOutput) EncodingInfo() audio.EncodingInfo { return audio.GetPlaybackEncodingInfo() }

func (o *stubOutput) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *stubOutput) Schedule(unit audio.PlaybackUnit, onEnded func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, unit)
	o.onEnded[unit.ID] = onEnded
	return nil
}

func (o *stubOutput) Stop(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.onEnded, id)
	o.stopped = append(o.stopped, id)
}

func (o *stubOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

// finish plays out a unit as the device would.
func (o *stubOutput) finish(id uint64) {
	o.mu.Lock()
	onEnded, ok := o.onEnded[id]
	delete(o.onEnded, id)
	o.mu.Unlock()
	if ok {
		onEnded()
	}
}

func (o *stubOutput) setNow(now time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

func (o *stubOutput) scheduledUnits() []audio.PlaybackUnit {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.PlaybackUnit(nil), o.scheduled...)
}

func (o *stubOutput) stoppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stopped)
}

func (o *stubOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

type stubOutputOpener struct {
	output *stubOutput
	err    error
}

func (o *stubOutputOpener) OpenOutput(context.Context) (audio.Output, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.output, nil
}

type retrieverFunc func(query string) string

func (f retrieverFunc) Search(query string) string { return f(query) }

// silence returns a payload that plays for the given number of samples at
// the playback rate.
func silence(samples int) string {
	return audio.EncodeBase64PCM(make([]float32, samples))
}
