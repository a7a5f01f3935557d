package orchestration

import (
	"github.com/jinzhu/copier"
)

type stateEmitter func(Snapshot)

func noopStateEmitter(Snapshot) {}

func newCallbackStateEmitter(callback func(Snapshot)) stateEmitter {
	if callback == nil {
		return noopStateEmitter
	}

	return func(state Snapshot) {
		callback(state.clone())
	}
}

// clone deep-copies the snapshot so receivers may keep or mutate it.
func (s Snapshot) clone() Snapshot {
	var out Snapshot
	if err := copier.CopyWithOption(&out, &s, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy state snapshot", "error", err)
		out = s
		out.Transcripts = append([]TranscriptEntry(nil), s.Transcripts...)
	}
	return out
}
