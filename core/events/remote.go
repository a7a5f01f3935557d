package events

const (
	// KindToolCall identifies a batch of function invocations.
	KindToolCall Kind = "remote.tool_call"
	// KindInputTranscription identifies a user transcript delta.
	KindInputTranscription Kind = "remote.input_transcription"
	// KindOutputTranscription identifies an agent transcript delta.
	KindOutputTranscription Kind = "remote.output_transcription"
	// KindInlineAudio identifies a synthesized speech chunk.
	KindInlineAudio Kind = "remote.inline_audio"
	// KindTurnComplete identifies the end of a conversational turn.
	KindTurnComplete Kind = "remote.turn_complete"
	// KindInterrupted identifies a barge-in by the user.
	KindInterrupted Kind = "remote.interrupted"
)

// ToolInvocation is a single function call requested by the remote agent.
// ID must be echoed unchanged in the matching response.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolCall carries every invocation contained in one server message.
type ToolCall struct {
	Base
	Invocations []ToolInvocation
}

// NewToolCall creates a tool call event.
func NewToolCall(invocations ...ToolInvocation) ToolCall {
	return ToolCall{Base: NewBase(KindToolCall), Invocations: invocations}
}

// InputTranscription carries a user transcript delta.
type InputTranscription struct {
	Base
	Text string
}

// NewInputTranscription creates a user transcript delta event.
func NewInputTranscription(text string) InputTranscription {
	return InputTranscription{Base: NewBase(KindInputTranscription), Text: text}
}

// OutputTranscription carries an agent transcript delta.
type OutputTranscription struct {
	Base
	Text string
}

// NewOutputTranscription creates an agent transcript delta event.
func NewOutputTranscription(text string) OutputTranscription {
	return OutputTranscription{Base: NewBase(KindOutputTranscription), Text: text}
}

// InlineAudio carries one base64-encoded PCM chunk.
type InlineAudio struct {
	Base
	Data     string
	MIMEType string
}

// NewInlineAudio creates an inline audio event.
func NewInlineAudio(data, mimeType string) InlineAudio {
	return InlineAudio{Base: NewBase(KindInlineAudio), Data: data, MIMEType: mimeType}
}

// TurnComplete marks the end of the current turn.
type TurnComplete struct{ Base }

// NewTurnComplete creates a turn complete event.
func NewTurnComplete() TurnComplete {
	return TurnComplete{Base: NewBase(KindTurnComplete)}
}

// Interrupted marks that agent playback must stop immediately.
type Interrupted struct{ Base }

// NewInterrupted creates an interruption event.
func NewInterrupted() Interrupted {
	return Interrupted{Base: NewBase(KindInterrupted)}
}
