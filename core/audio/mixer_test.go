package audio

import (
	"testing"
	"time"
)

func TestMixerPlaysUnitsBackToBack(t *testing.T) {
	info := EncodingInfo{SampleRate: 10, Channels: 1, Format: EncodingFloat32}
	mixer := NewMixer(info)

	ended := []uint64{}
	first := PlaybackUnit{ID: 1, Samples: []float32{0.1, 0.1, 0.1}, Start: 0, Duration: info.Duration(3)}
	second := PlaybackUnit{ID: 2, Samples: []float32{0.2, 0.2}, Start: first.End(), Duration: info.Duration(2)}
	if err := mixer.Schedule(first, func() { ended = append(ended, 1) }); err != nil {
		t.Fatalf("expected first unit to schedule, got %v", err)
	}
	if err := mixer.Schedule(second, func() { ended = append(ended, 2) }); err != nil {
		t.Fatalf("expected second unit to schedule, got %v", err)
	}

	out := make([]float32, 4)
	for _, callback := range mixer.Render(out) {
		callback()
	}
	expected := []float32{0.1, 0.1, 0.1, 0.2}
	for i := range expected {
		if out[i] != expected[i] {
			t.Fatalf("expected frame %d to be %v, got %v", i, expected[i], out[i])
		}
	}
	if len(ended) != 1 || ended[0] != 1 {
		t.Fatalf("expected only the first unit to end, got %v", ended)
	}

	for _, callback := range mixer.Render(out) {
		callback()
	}
	if out[0] != 0.2 || out[1] != 0 {
		t.Fatalf("expected tail of second unit then silence, got %v", out)
	}
	if len(ended) != 2 || ended[1] != 2 {
		t.Fatalf("expected second unit to end, got %v", ended)
	}
	if got := mixer.CurrentTime(); got != 800*time.Millisecond {
		t.Fatalf("expected clock at 800ms, got %v", got)
	}
}

func TestMixerStopSuppressesEndedCallback(t *testing.T) {
	mixer := NewMixer(EncodingInfo{SampleRate: 10, Channels: 1, Format: EncodingFloat32})

	called := false
	_ = mixer.Schedule(PlaybackUnit{ID: 7, Samples: []float32{0.5, 0.5}}, func() { called = true })
	mixer.Stop(7)

	out := make([]float32, 4)
	if callbacks := mixer.Render(out); len(callbacks) != 0 {
		t.Fatalf("expected no ended callbacks, got %d", len(callbacks))
	}
	if called || out[0] != 0 {
		t.Fatalf("expected stopped unit to stay silent")
	}
}

func TestMixerClampsOverlappingUnits(t *testing.T) {
	mixer := NewMixer(EncodingInfo{SampleRate: 10, Channels: 1, Format: EncodingFloat32})
	_ = mixer.Schedule(PlaybackUnit{ID: 1, Samples: []float32{0.8}}, nil)
	_ = mixer.Schedule(PlaybackUnit{ID: 2, Samples: []float32{0.8}}, nil)

	out := make([]float32, 1)
	mixer.Render(out)
	if out[0] != 1 {
		t.Fatalf("expected clamped sample, got %v", out[0])
	}
}

func TestMixerRejectsDuplicateIDs(t *testing.T) {
	mixer := NewMixer(EncodingInfo{SampleRate: 10, Channels: 1, Format: EncodingFloat32})
	_ = mixer.Schedule(PlaybackUnit{ID: 1, Samples: []float32{0.1}}, nil)
	if err := mixer.Schedule(PlaybackUnit{ID: 1, Samples: []float32{0.1}}, nil); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}
