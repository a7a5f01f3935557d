package audio

import (
	"fmt"
	"sync"
	"time"
)

// Mixer renders scheduled playback units against a frame-counting clock. It
// backs device outputs whose driver pulls audio in callbacks.
type Mixer struct {
	info EncodingInfo

	mu     sync.Mutex
	played int64
	units  map[uint64]*mixerUnit
}

type mixerUnit struct {
	startFrame int64
	samples    []float32
	onEnded    func()
}

func NewMixer(info EncodingInfo) *Mixer {
	return &Mixer{info: info, units: make(map[uint64]*mixerUnit)}
}

func (m *Mixer) EncodingInfo() EncodingInfo {
	return m.info
}

// CurrentTime is the amount of audio rendered so far.
func (m *Mixer) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info.Duration(int(m.played))
}

func (m *Mixer) Schedule(unit PlaybackUnit, onEnded func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.units[unit.ID]; ok {
		return fmt.Errorf("playback unit %d already scheduled", unit.ID)
	}

	startFrame := int64(m.info.Samples(unit.Start))
	if startFrame < m.played {
		startFrame = m.played
	}
	m.units[unit.ID] = &mixerUnit{startFrame: startFrame, samples: unit.Samples, onEnded: onEnded}
	return nil
}

func (m *Mixer) Stop(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.units, id)
}

// Clear drops every scheduled unit without firing their callbacks.
func (m *Mixer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = make(map[uint64]*mixerUnit)
}

// Render fills out with the next len(out) frames, advances the clock and
// returns the callbacks of units that finished inside this window. Callers
// must not invoke them on a realtime audio thread.
func (m *Mixer) Render(out []float32) []func() {
	clear(out)

	m.mu.Lock()
	defer m.mu.Unlock()

	windowStart := m.played
	windowEnd := windowStart + int64(len(out))

	var ended []func()
	for id, unit := range m.units {
		unitEnd := unit.startFrame + int64(len(unit.samples))
		if unit.startFrame < windowEnd && unitEnd > windowStart {
			from := max(unit.startFrame, windowStart)
			to := min(unitEnd, windowEnd)
			for frame := from; frame < to; frame++ {
				out[frame-windowStart] += unit.samples[frame-unit.startFrame]
			}
		}
		if unitEnd <= windowEnd {
			delete(m.units, id)
			if unit.onEnded != nil {
				ended = append(ended, unit.onEnded)
			}
		}
	}

	for i, sample := range out {
		if sample > 1 {
			out[i] = 1
		} else if sample < -1 {
			out[i] = -1
		}
	}

	m.played = windowEnd
	return ended
}
