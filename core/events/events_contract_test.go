package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "tool call", event: NewToolCall(ToolInvocation{ID: "x"}), expected: KindToolCall},
		{name: "input transcription", event: NewInputTranscription("hi"), expected: KindInputTranscription},
		{name: "output transcription", event: NewOutputTranscription("hello"), expected: KindOutputTranscription},
		{name: "inline audio", event: NewInlineAudio("AAA=", "audio/pcm;rate=24000"), expected: KindInlineAudio},
		{name: "turn complete", event: NewTurnComplete(), expected: KindTurnComplete},
		{name: "interrupted", event: NewInterrupted(), expected: KindInterrupted},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected event timestamp to be set")
			}
		})
	}
}

func TestToolCallKeepsInvocationOrder(t *testing.T) {
	call := NewToolCall(
		ToolInvocation{ID: "a", Name: "lookupInspectionManual"},
		ToolInvocation{ID: "b", Name: "lookupInspectionManual"},
	)

	if len(call.Invocations) != 2 || call.Invocations[0].ID != "a" || call.Invocations[1].ID != "b" {
		t.Fatalf("expected invocations in arrival order, got %+v", call.Invocations)
	}
}
