package orchestration

import (
	"fmt"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
)

// playbackScheduler plays inline audio payloads back to back against the
// output device clock. Owned by the control loop; no locking.
type playbackScheduler struct {
	output    audio.Output
	info      audio.EncodingInfo
	nextStart time.Duration
	scheduled map[uint64]audio.PlaybackUnit
	nextID    uint64
}

func newPlaybackScheduler() *playbackScheduler {
	return &playbackScheduler{
		info:      audio.GetPlaybackEncodingInfo(),
		scheduled: make(map[uint64]audio.PlaybackUnit),
	}
}

func (s *playbackScheduler) attach(output audio.Output) {
	s.output = output
	s.nextStart = 0
	clear(s.scheduled)
}

// detach stops everything still scheduled and hands the device back for
// closing. Payloads arriving afterwards are dropped.
func (s *playbackScheduler) detach() audio.Output {
	s.interrupt()
	output := s.output
	s.output = nil
	return output
}

// schedule decodes one payload and queues it at max(nextStart, now).
// It returns false without error when there is no output to play on.
func (s *playbackScheduler) schedule(payload string, onEnded func(id uint64)) (audio.PlaybackUnit, bool, error) {
	if s.output == nil {
		playbackPayloadsDropped.WithLabelValues(dropReasonNoOutput).Inc()
		return audio.PlaybackUnit{}, false, nil
	}

	samples, err := audio.DecodeBase64PCM(payload)
	if err != nil {
		playbackPayloadsDropped.WithLabelValues(dropReasonDecode).Inc()
		return audio.PlaybackUnit{}, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	s.nextID++
	unit := audio.PlaybackUnit{
		ID:       s.nextID,
		Samples:  samples,
		Start:    max(s.nextStart, s.output.CurrentTime()),
		Duration: s.info.Duration(len(samples)),
	}

	id := unit.ID
	if err := s.output.Schedule(unit, func() { onEnded(id) }); err != nil {
		playbackPayloadsDropped.WithLabelValues(dropReasonSchedule).Inc()
		return audio.PlaybackUnit{}, false, fmt.Errorf("failed to schedule playback unit: %w", err)
	}

	s.nextStart = unit.End()
	s.scheduled[unit.ID] = unit
	playbackUnitsScheduled.Inc()
	return unit, true, nil
}

// ended removes a finished unit. Unknown ids (already interrupted) are
// ignored.
func (s *playbackScheduler) ended(id uint64) bool {
	if _, ok := s.scheduled[id]; !ok {
		return false
	}
	delete(s.scheduled, id)
	return true
}

// interrupt stops every scheduled unit, clears the set and rewinds nextStart.
func (s *playbackScheduler) interrupt() int {
	stopped := len(s.scheduled)
	if s.output != nil {
		for id := range s.scheduled {
			s.output.Stop(id)
		}
	}
	clear(s.scheduled)
	s.nextStart = 0
	return stopped
}

func (s *playbackScheduler) idle() bool { return len(s.scheduled) == 0 }

func (s *playbackScheduler) pendingUnits() int { return len(s.scheduled) }
