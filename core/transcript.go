package orchestration

import "strings"

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is immutable once committed.
type TranscriptEntry struct {
	Speaker Speaker
	Text    string
}

// PendingTranscripts holds the in-progress text of the current turn.
type PendingTranscripts struct {
	User  string
	Agent string
}

// transcriptAccumulator merges streamed deltas into per-speaker buffers and
// commits them at turn boundaries. Owned by the control loop.
type transcriptAccumulator struct {
	entries []TranscriptEntry
	user    strings.Builder
	agent   strings.Builder
}

func (t *transcriptAccumulator) appendUser(delta string)  { t.user.WriteString(delta) }
func (t *transcriptAccumulator) appendAgent(delta string) { t.agent.WriteString(delta) }

// commit appends the trimmed user entry, then the trimmed agent entry, and
// clears both buffers. Buffers that are empty after trimming add nothing.
func (t *transcriptAccumulator) commit() []TranscriptEntry {
	var committed []TranscriptEntry
	if text := strings.TrimSpace(t.user.String()); text != "" {
		committed = append(committed, TranscriptEntry{Speaker: SpeakerUser, Text: text})
	}
	if text := strings.TrimSpace(t.agent.String()); text != "" {
		committed = append(committed, TranscriptEntry{Speaker: SpeakerAgent, Text: text})
	}

	t.entries = append(t.entries, committed...)
	t.user.Reset()
	t.agent.Reset()
	return committed
}

func (t *transcriptAccumulator) reset() {
	t.entries = nil
	t.user.Reset()
	t.agent.Reset()
}

func (t *transcriptAccumulator) pending() PendingTranscripts {
	return PendingTranscripts{User: t.user.String(), Agent: t.agent.String()}
}
