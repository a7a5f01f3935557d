package orchestration

import (
	"errors"
	"fmt"
)

const connectionFailedMessage = "Connection failed. Please try again."

var (
	// ErrSessionActive is returned by Start while a session is already
	// connecting or running.
	ErrSessionActive = errors.New("session already active")
	// ErrSessionStopped is returned by Start when Stop won the race against
	// the handshake.
	ErrSessionStopped = errors.New("session stopped before it was established")
	ErrClosed         = errors.New("orchestrator closed")
	ErrNoConnector    = errors.New("no live connector configured")
	ErrNoMicrophone   = errors.New("no microphone configured")
	// ErrDecode marks a malformed inline audio payload. It is only logged.
	ErrDecode = errors.New("failed to decode audio payload")
)

// AcquisitionError reports that a local audio device could not be opened.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire %s: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// TransportError reports a failed handshake or a mid-session transport fault.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live session %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// userMessage is the text surfaced through ErrorMessage.
func userMessage(err error) string {
	var acquisitionErr *AcquisitionError
	if errors.As(err, &acquisitionErr) {
		return acquisitionErr.Err.Error()
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Op == transportOpSession {
			return connectionFailedMessage
		}
		return transportErr.Err.Error()
	}

	return err.Error()
}

const (
	transportOpOpen    = "open"
	transportOpSession = "session"
)
