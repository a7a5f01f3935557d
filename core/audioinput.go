package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/live"
)

const (
	defaultCaptureWindow = 4096
	// About eight seconds of default-sized windows at 16 kHz.
	frameQueueSize = 32
)

// capturePipeline windows microphone samples into fixed-size frames and
// hands them to the live session in capture order. Windowing runs on the
// device's callback goroutine; sends run on a single sender goroutine so a
// stalled transport never blocks the device.
type capturePipeline struct {
	mic    audio.Microphone
	send   func(live.AudioFrame) error
	window int
	mime   string

	// active gates the device callback; it is cleared before the device is
	// released so late callbacks are dropped.
	active atomic.Bool

	mu      sync.Mutex
	pending []float32
	seq     int64
	stopped bool

	frames chan live.AudioFrame

	releaseOnce sync.Once
	releaseErr  error
}

func newCapturePipeline(mic audio.Microphone, window int, send func(live.AudioFrame) error) *capturePipeline {
	if window <= 0 {
		window = defaultCaptureWindow
	}

	info := mic.EncodingInfo()
	if info.IsZero() {
		info = audio.GetCaptureEncodingInfo()
	}

	return &capturePipeline{
		mic:     mic,
		send:    send,
		window:  window,
		mime:    info.MIMEType(),
		pending: make([]float32, 0, window*2),
		frames:  make(chan live.AudioFrame, frameQueueSize),
	}
}

func (p *capturePipeline) start(ctx context.Context) error {
	go p.sendFrames()
	p.active.Store(true)
	if err := p.mic.StartCapture(ctx, p.onSamples); err != nil {
		p.active.Store(false)
		return fmt.Errorf("failed to start capture: %w", err)
	}
	return nil
}

func (p *capturePipeline) onSamples(samples []float32) {
	if !p.active.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	p.pending = append(p.pending, samples...)
	for len(p.pending) >= p.window {
		frame := live.AudioFrame{
			Data:     audio.EncodeBase64PCM(p.pending[:p.window]),
			MIMEType: p.mime,
			Seq:      p.seq,
		}
		p.seq++
		p.pending = p.pending[p.window:]

		select {
		case p.frames <- frame:
		default:
			audioFramesDropped.Inc()
			logger.Warn("audio send queue full, dropping frame", "seq", frame.Seq)
		}
	}

	// Keep the backing array from growing without bound.
	if cap(p.pending) > p.window*4 {
		p.pending = append(make([]float32, 0, p.window*2), p.pending...)
	}
}

func (p *capturePipeline) sendFrames() {
	for frame := range p.frames {
		// Frames queued before release are discarded, not sent.
		if !p.active.Load() {
			continue
		}
		if err := p.send(frame); err != nil {
			if !errors.Is(err, live.ErrSessionClosed) {
				logger.Warn("failed to send audio frame", "seq", frame.Seq, "error", err)
			}
			continue
		}
		audioFramesSent.Inc()
	}
}

// release stops capture and frees the microphone. Only the first call does
// any work; later calls return the first result.
func (p *capturePipeline) release() error {
	p.releaseOnce.Do(func() {
		p.active.Store(false)
		p.releaseErr = p.mic.Close()

		p.mu.Lock()
		p.pending = nil
		p.stopped = true
		close(p.frames)
		p.mu.Unlock()
	})
	return p.releaseErr
}

// captureSlot holds the single microphone handle an orchestrator may own.
type captureSlot struct {
	mu      sync.Mutex
	current *capturePipeline
}

// acquire opens a new pipeline when stillWanted holds under the slot lock,
// force-releasing whatever handle the slot held before.
func (s *captureSlot) acquire(
	ctx context.Context,
	opener audio.MicrophoneOpener,
	stillWanted func() bool,
	build func(audio.Microphone) *capturePipeline,
) (*capturePipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !stillWanted() {
		return nil, ErrSessionStopped
	}

	if previous := s.current; previous != nil {
		s.current = nil
		if err := previous.release(); err != nil {
			logger.Warn("failed to release previous microphone", "error", err)
		}
	}

	mic, err := opener.OpenMicrophone(ctx)
	if err != nil {
		return nil, &AcquisitionError{Device: "microphone", Err: err}
	}

	pipeline := build(mic)
	if err := pipeline.start(ctx); err != nil {
		_ = pipeline.release()
		return nil, &AcquisitionError{Device: "microphone", Err: err}
	}

	s.current = pipeline
	return pipeline, nil
}

// release frees pipeline and clears the slot if it still holds it.
func (s *captureSlot) release(pipeline *capturePipeline) error {
	if pipeline == nil {
		return nil
	}

	s.mu.Lock()
	if s.current == pipeline {
		s.current = nil
	}
	s.mu.Unlock()

	return pipeline.release()
}

func (s *captureSlot) holding() *capturePipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
