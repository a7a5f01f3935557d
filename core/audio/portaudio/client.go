package portaudio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-live/core/audio"
)

var (
	_ audio.MicrophoneOpener = (*Client)(nil)
	_ audio.OutputOpener     = (*Client)(nil)
)

// Client drives PortAudio with blocking streams. Each opened device runs its
// own pump goroutine.
type Client struct {
	bufferSize int

	terminateOnce sync.Once
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) OpenMicrophone(_ context.Context) (audio.Microphone, error) {
	in := make([]float32, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.CaptureSampleRate, c.bufferSize, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}
	return &microphone{stream: stream, in: in, done: make(chan struct{})}, nil
}

func (c *Client) OpenOutput(_ context.Context) (audio.Output, error) {
	out := make([]float32, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.PlaybackSampleRate, c.bufferSize, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}

	o := &output{
		stream: stream,
		out:    out,
		mixer: audio.NewMixer(audio.EncodingInfo{
			SampleRate: audio.PlaybackSampleRate,
			Channels:   1,
			Format:     audio.EncodingFloat32,
		}),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go o.pump()
	return o, nil
}

func (c *Client) Close() {
	c.terminateOnce.Do(func() {
		if err := portaudio.Terminate(); err != nil {
			log.Printf("Failed to terminate PortAudio: %v", err)
		}
	})
}

type microphone struct {
	stream *portaudio.Stream
	in     []float32

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (m *microphone) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: audio.CaptureSampleRate, Channels: 1, Format: audio.EncodingFloat32}
}

func (m *microphone) StartCapture(ctx context.Context, onSamples func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("microphone closed")
	} else if m.started {
		return nil
	}

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio input stream: %w", err)
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go m.pump(ctx, onSamples)
	return nil
}

func (m *microphone) pump(ctx context.Context, onSamples func(samples []float32)) {
	defer close(m.done)

	err := pumpReads(ctx, m.stream.Read, func() {
		samples := make([]float32, len(m.in))
		copy(samples, m.in)
		onSamples(samples)
	}, readRetryDelay)
	if err != nil {
		log.Printf("Stopped reading from PortAudio stream: %v", err)
	}
}

const (
	readRetryDelay  = 20 * time.Millisecond
	maxReadFailures = 50
)

// pumpReads calls read until ctx is done and hands every successful read to
// deliver. Failed reads back off by retryDelay; maxReadFailures consecutive
// failures end the loop with the last error.
func pumpReads(ctx context.Context, read func() error, deliver func(), retryDelay time.Duration) error {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := read(); err != nil {
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("%d consecutive reads failed: %w", failures, err)
			}
			if failures == 1 {
				log.Printf("Failed to read from PortAudio stream: %v", err)
			}

			timer := time.NewTimer(retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}

		failures = 0
		deliver()
	}
}

func (m *microphone) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Unlock()

		if started {
			<-m.done
			if stopErr := m.stream.Stop(); stopErr != nil {
				err = fmt.Errorf("failed to stop PortAudio input stream: %w", stopErr)
			}
		}
		if closeErr := m.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close PortAudio input stream: %w", closeErr)
		}
	})
	return err
}

type output struct {
	stream *portaudio.Stream
	out    []float32
	mixer  *audio.Mixer

	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}
}

func (o *output) EncodingInfo() audio.EncodingInfo { return o.mixer.EncodingInfo() }

func (o *output) CurrentTime() time.Duration { return o.mixer.CurrentTime() }

func (o *output) Schedule(unit audio.PlaybackUnit, onEnded func()) error {
	select {
	case <-o.closeCh:
		return fmt.Errorf("output closed")
	default:
	}
	return o.mixer.Schedule(unit, onEnded)
}

func (o *output) Stop(id uint64) { o.mixer.Stop(id) }

func (o *output) pump() {
	defer close(o.done)
	for {
		select {
		case <-o.closeCh:
			return
		default:
		}

		ended := o.mixer.Render(o.out)
		if err := o.stream.Write(); err != nil {
			log.Printf("Failed to write to PortAudio stream: %v", err)
		}
		for _, callback := range ended {
			callback()
		}
	}
}

func (o *output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.closeCh)
		<-o.done
		o.mixer.Clear()
		if stopErr := o.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop PortAudio output stream: %w", stopErr)
		}
		if closeErr := o.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close PortAudio output stream: %w", closeErr)
		}
	})
	return err
}
