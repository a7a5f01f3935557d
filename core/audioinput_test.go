package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/live"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []live.AudioFrame
	// failures makes the first N sends fail with ErrSessionClosed.
	failures int
	// gate, when set, blocks every send until closed.
	gate chan struct{}
}

func (r *frameRecorder) send(frame live.AudioFrame) error {
	if r.gate != nil {
		<-r.gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return live.ErrSessionClosed
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) sent() []live.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]live.AudioFrame(nil), r.frames...)
}

func TestCapturePipelineWindowsSamplesInOrder(t *testing.T) {
	mic := &stubMicrophone{}
	recorder := &frameRecorder{}
	pipeline := newCapturePipeline(mic, 3, recorder.send)
	defer pipeline.release()

	if err := pipeline.start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	mic.push([]float32{0.1, 0.2})
	time.Sleep(20 * time.Millisecond)
	if got := len(recorder.sent()); got != 0 {
		t.Fatalf("expected no frame before a full window, got %d", got)
	}
	mic.push([]float32{0.3, 0.4, 0.5, 0.6, 0.7})

	waitForCondition(t, time.Second, "two frames sent", func() bool {
		return len(recorder.sent()) == 2
	})
	expected := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}
	for i, frame := range recorder.sent() {
		if frame.Seq != int64(i) {
			t.Fatalf("expected seq %d, got %d", i, frame.Seq)
		}
		if frame.MIMEType != audio.GetCaptureEncodingInfo().MIMEType() {
			t.Fatalf("expected capture mime type, got %q", frame.MIMEType)
		}
		if frame.Data != audio.EncodeBase64PCM(expected[i]) {
			t.Fatalf("expected frame %d to carry window %v", i, expected[i])
		}
	}
}

func TestCapturePipelineReleaseIsIdempotent(t *testing.T) {
	mic := &stubMicrophone{}
	recorder := &frameRecorder{}
	pipeline := newCapturePipeline(mic, 2, recorder.send)

	if err := pipeline.start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := pipeline.release(); err != nil {
			t.Fatalf("expected release to succeed, got %v", err)
		}
	}
	if closes := mic.closeCount(); closes != 1 {
		t.Fatalf("expected microphone closed once, got %d", closes)
	}

	mic.push([]float32{0.1, 0.2, 0.3, 0.4})
	time.Sleep(20 * time.Millisecond)
	if got := len(recorder.sent()); got != 0 {
		t.Fatalf("expected late samples to be dropped, got %d frames", got)
	}
}

func TestCapturePipelineKeepsStreamingAfterClosedSession(t *testing.T) {
	mic := &stubMicrophone{}
	recorder := &frameRecorder{failures: 2}
	pipeline := newCapturePipeline(mic, 2, recorder.send)
	defer pipeline.release()

	if err := pipeline.start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	mic.push([]float32{0.1, 0.2, 0.3, 0.4})
	mic.push([]float32{0.5, 0.6})

	waitForCondition(t, time.Second, "frame after failed sends", func() bool {
		return len(recorder.sent()) == 1
	})
	if frames := recorder.sent(); frames[0].Seq != 2 {
		t.Fatalf("expected the next frame to keep its sequence number, got %+v", frames)
	}
}

func TestCapturePipelineDoesNotBlockOnStalledSend(t *testing.T) {
	mic := &stubMicrophone{}
	recorder := &frameRecorder{gate: make(chan struct{})}
	pipeline := newCapturePipeline(mic, 2, recorder.send)
	defer pipeline.release()

	if err := pipeline.start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for i := 0; i < 4; i++ {
			mic.push([]float32{float32(i) / 10, float32(i) / 10})
		}
	}()

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatalf("expected capture callback to return while the send is stalled")
	}

	close(recorder.gate)
	waitForCondition(t, time.Second, "queued frames sent", func() bool {
		return len(recorder.sent()) == 4
	})
	for i, frame := range recorder.sent() {
		if frame.Seq != int64(i) {
			t.Fatalf("expected frames in capture order, got seq %d at %d", frame.Seq, i)
		}
	}
}

func TestCapturePipelineDropsFramesWhenQueueIsFull(t *testing.T) {
	mic := &stubMicrophone{}
	recorder := &frameRecorder{gate: make(chan struct{})}
	pipeline := newCapturePipeline(mic, 1, recorder.send)

	if err := pipeline.start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	// One frame is held by the stalled sender, the queue holds the rest.
	total := frameQueueSize + 10
	for i := 0; i < total; i++ {
		mic.push([]float32{0.1})
	}

	close(recorder.gate)
	waitForCondition(t, time.Second, "queue drained", func() bool {
		return len(recorder.sent()) >= frameQueueSize
	})
	time.Sleep(20 * time.Millisecond)
	if got := len(recorder.sent()); got >= total {
		t.Fatalf("expected overflow frames to be dropped, got %d of %d", got, total)
	}
	_ = pipeline.release()
}

func TestCaptureSlotForceReleasesPreviousHandle(t *testing.T) {
	opener := &stubMicrophoneOpener{}
	build := func(mic audio.Microphone) *capturePipeline {
		return newCapturePipeline(mic, 2, (&frameRecorder{}).send)
	}
	wanted := func() bool { return true }

	var slot captureSlot
	first, err := slot.acquire(context.Background(), opener, wanted, build)
	if err != nil {
		t.Fatalf("expected first acquisition to succeed, got %v", err)
	}
	second, err := slot.acquire(context.Background(), opener, wanted, build)
	if err != nil {
		t.Fatalf("expected second acquisition to succeed, got %v", err)
	}

	if closes := opener.opened[0].closeCount(); closes != 1 {
		t.Fatalf("expected previous microphone force-released, got %d closes", closes)
	}
	if slot.holding() != second || first == second {
		t.Fatalf("expected slot to hold the newest pipeline")
	}

	if err := slot.release(second); err != nil {
		t.Fatalf("expected release to succeed, got %v", err)
	}
	if slot.holding() != nil {
		t.Fatalf("expected slot to be empty after release")
	}
}

func TestCaptureSlotSkipsUnwantedAcquisition(t *testing.T) {
	opener := &stubMicrophoneOpener{}
	var slot captureSlot

	_, err := slot.acquire(context.Background(), opener, func() bool { return false }, func(mic audio.Microphone) *capturePipeline {
		t.Fatalf("expected no pipeline to be built")
		return nil
	})

	if !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped, got %v", err)
	}
	if opener.openCount() != 0 {
		t.Fatalf("expected no microphone to be opened, got %d", opener.openCount())
	}
}

func TestCaptureSlotReleasesMicrophoneThatFailedToStart(t *testing.T) {
	mic := &stubMicrophone{startErr: errors.New("device busy")}
	opener := openerFunc(func(context.Context) (audio.Microphone, error) { return mic, nil })
	var slot captureSlot

	_, err := slot.acquire(context.Background(), opener, func() bool { return true }, func(mic audio.Microphone) *capturePipeline {
		return newCapturePipeline(mic, 2, (&frameRecorder{}).send)
	})

	var acquisitionErr *AcquisitionError
	if !errors.As(err, &acquisitionErr) || acquisitionErr.Device != "microphone" {
		t.Fatalf("expected microphone acquisition error, got %v", err)
	}
	if closes := mic.closeCount(); closes != 1 {
		t.Fatalf("expected failed microphone to be released, got %d closes", closes)
	}
	if slot.holding() != nil {
		t.Fatalf("expected slot to stay empty")
	}
}

type openerFunc func(context.Context) (audio.Microphone, error)

func (f openerFunc) OpenMicrophone(ctx context.Context) (audio.Microphone, error) { return f(ctx) }
