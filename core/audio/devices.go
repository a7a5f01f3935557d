package audio

import (
	"context"
	"time"
)

// Microphone is an acquired capture device. Close stops capture and releases
// the device; it must be safe to call more than once.
type Microphone interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onSamples func(samples []float32)) error
	Close() error
}

// Output is an acquired playback device with its own clock. Units are mixed
// at the device-clock time they were scheduled for.
type Output interface {
	EncodingInfo() EncodingInfo
	CurrentTime() time.Duration
	// Schedule queues a unit. onEnded fires once the unit played to
	// completion; it does not fire for units removed with Stop.
	Schedule(unit PlaybackUnit, onEnded func()) error
	Stop(id uint64)
	Close() error
}

type MicrophoneOpener interface {
	OpenMicrophone(ctx context.Context) (Microphone, error)
}

type OutputOpener interface {
	OpenOutput(ctx context.Context) (Output, error)
}
