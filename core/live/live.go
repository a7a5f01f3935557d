// Package live describes the remote conversational session the session
// manager talks to. Concrete transports live in sub-packages.
package live

import (
	"context"
	"errors"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-live/core/events"
)

var (
	ErrMissingAPIKey = errors.New("API_KEY environment variable not set")
	ErrSessionClosed = errors.New("live session closed")
)

type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config is everything needed to open a session.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	Modalities        []Modality
	Tools             []ToolDeclaration

	InputTranscription  bool
	OutputTranscription bool
}

// ToolDeclaration advertises a function the remote agent may call.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// AudioFrame is one window of captured audio, base64-encoded 16-bit PCM.
type AudioFrame struct {
	Data     string
	MIMEType string
	Seq      int64
}

// ToolResponse answers a single [events.ToolInvocation] with the same ID.
type ToolResponse struct {
	ID     string
	Name   string
	Result string
}

// Callbacks are invoked from transport goroutines. Implementations must not
// block inside them.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(event events.Event)
	OnError   func(err error)
	OnClose   func()
}

// Session is an open remote session. Sends are fire-and-forget from the
// caller's point of view; returned errors are informational.
type Session interface {
	SendAudioFrame(frame AudioFrame) error
	SendToolResponse(responses ...ToolResponse) error
	Close() error
}

// Connector opens sessions. Open returns once the handshake completed or
// failed.
type Connector interface {
	Open(ctx context.Context, config Config, callbacks Callbacks) (Session, error)
}

// WithDefaults fills unset callbacks with no-ops so transports can call
// them unconditionally.
func (c Callbacks) WithDefaults() Callbacks {
	if c.OnOpen == nil {
		c.OnOpen = func() {}
	}
	if c.OnMessage == nil {
		c.OnMessage = func(events.Event) {}
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	if c.OnClose == nil {
		c.OnClose = func() {}
	}
	return c
}
