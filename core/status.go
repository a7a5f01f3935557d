package orchestration

// SessionStatus is the single externally observable lifecycle signal.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusConnecting SessionStatus = "connecting"
	StatusListening  SessionStatus = "listening"
	StatusSpeaking   SessionStatus = "speaking"
	StatusSearching  SessionStatus = "searching"
	StatusClosing    SessionStatus = "closing"
	StatusError      SessionStatus = "error"
)

// IsActive reports whether a session holds (or is acquiring) resources.
func (s SessionStatus) IsActive() bool {
	return s != StatusIdle && s != StatusError
}

// IsTransitioning reports states during which start/stop controls should be
// disabled.
func (s SessionStatus) IsTransitioning() bool {
	return s == StatusConnecting || s == StatusSearching || s == StatusClosing
}

func (s SessionStatus) isFlow() bool {
	return s == StatusListening || s == StatusSpeaking
}
