package events

import "time"

// Kind names an event type, namespaced by its origin.
type Kind string

// Event is implemented by every remote event. Consumers switch on the
// concrete type; Kind exists for logging and metrics labels.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by all events. It records when the
// transport decoded the event, not when the server produced it.
type Base struct {
	kind       Kind
	receivedAt time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, receivedAt: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.receivedAt }
func (b Base) String() string       { return string(b.kind) }
