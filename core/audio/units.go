package audio

import "time"

// PlaybackUnit is one decoded chunk of synthesized speech together with the
// device-clock time it must start at.
type PlaybackUnit struct {
	ID       uint64
	Samples  []float32
	Start    time.Duration
	Duration time.Duration
}

// End is the device-clock time at which the unit finishes playing.
func (u PlaybackUnit) End() time.Duration {
	return u.Start + u.Duration
}
