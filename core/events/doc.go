// Package events defines the typed contract for messages arriving from a
// remote live session.
//
// A single server message may carry several of these; transports split it
// into events and deliver them in the order below, which is also the order
// the session manager handles them in:
//
//   - ToolCall (remote.tool_call): one or more function invocations the agent
//     wants answered before it continues.
//   - InputTranscription (remote.input_transcription): append-only segment of
//     the user's speech as transcribed by the remote side.
//   - OutputTranscription (remote.output_transcription): append-only segment
//     of the agent's speech text.
//   - InlineAudio (remote.inline_audio): base64-encoded PCM chunk of
//     synthesized speech.
//   - TurnComplete (remote.turn_complete): the current exchange is over.
//   - Interrupted (remote.interrupted): the user talked over the agent and
//     any queued agent audio must be dropped.
package events
