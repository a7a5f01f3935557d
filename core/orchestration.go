// Package orchestration runs a live voice session: it streams microphone
// audio to a remote agent, plays the agent's speech back gaplessly, keeps
// the transcript and answers the agent's tool calls.
package orchestration

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-live/core/live"
	"github.com/koscakluka/ema-live/core/retrieval"
)

// Snapshot is a point-in-time copy of the observable session state.
type Snapshot struct {
	SessionID    string
	Status       SessionStatus
	Transcripts  []TranscriptEntry
	Pending      PendingTranscripts
	ErrorMessage string

	ScheduledUnits     int
	ToolLookupsPending int
}

type Orchestrator struct {
	connector     live.Connector
	devices       audioDevices
	liveConfig    live.Config
	captureWindow int
	tools         *toolDispatcher
	emitState     stateEmitter
	baseContext   context.Context

	runtime *sessionRuntime
	capture captureSlot

	// epoch identifies the current session attempt. Only the control loop
	// advances it; helpers compare against it to detect that they were
	// superseded.
	epoch atomic.Uint64

	closeOnce sync.Once

	stateMu sync.RWMutex
	state   Snapshot
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		liveConfig:    DefaultLiveConfig(),
		captureWindow: defaultCaptureWindow,
		tools:         newToolDispatcher(),
		emitState:     noopStateEmitter,
		baseContext:   context.Background(),
		state:         Snapshot{Status: StatusIdle},
	}
	o.tools.register(lookupInspectionManual(retrieval.SampleManual()))

	for _, opt := range opts {
		opt(o)
	}

	o.runtime = newSessionRuntime(o)
	o.runtime.start()
	return o
}

// Start opens a new session and blocks until it is listening or has failed.
// Starting while a session is active returns ErrSessionActive and leaves the
// running session untouched. Cancelling ctx before Start returns aborts the
// attempt.
func (o *Orchestrator) Start(ctx context.Context) error {
	result := make(chan error, 1)
	if !o.runtime.post(startRequest{ctx: ctx, result: result}) {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
	case <-o.runtime.done:
		return ErrClosed
	}

	if !o.runtime.post(abortStart{result: result}) {
		return ErrClosed
	}
	select {
	case err := <-result:
		if errors.Is(err, ErrSessionStopped) {
			return ctx.Err()
		}
		return err
	case <-o.runtime.done:
		return ErrClosed
	}
}

// Stop tears the session down in reverse acquisition order and returns to
// idle. It is idempotent and never reports teardown errors.
func (o *Orchestrator) Stop(ctx context.Context) error {
	done := make(chan struct{})
	if !o.runtime.post(stopRequest{done: done}) {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.runtime.done:
		return nil
	}
}

// Close stops any session and ends the control loop. The orchestrator cannot
// be reused afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		_ = o.Stop(context.Background())
		o.runtime.end()
	})
}

func (o *Orchestrator) Status() SessionStatus {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.Status
}

func (o *Orchestrator) IsActive() bool { return o.Status().IsActive() }

// Transcripts returns the committed transcript log.
func (o *Orchestrator) Transcripts() []TranscriptEntry {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return slices.Clone(o.state.Transcripts)
}

func (o *Orchestrator) PendingTranscripts() PendingTranscripts {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.Pending
}

// ErrorMessage is the last user-facing error, or empty.
func (o *Orchestrator) ErrorMessage() string {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.ErrorMessage
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.clone()
}

// ToolDeclarations lists the tools advertised to the remote agent.
func (o *Orchestrator) ToolDeclarations() []live.ToolDeclaration {
	return o.tools.declarations()
}

func (o *Orchestrator) publish(next Snapshot) {
	o.stateMu.Lock()
	previous := o.state
	changed := previous.Status != next.Status ||
		previous.SessionID != next.SessionID ||
		previous.ErrorMessage != next.ErrorMessage ||
		previous.Pending != next.Pending ||
		previous.ScheduledUnits != next.ScheduledUnits ||
		previous.ToolLookupsPending != next.ToolLookupsPending ||
		len(previous.Transcripts) != len(next.Transcripts)
	if changed {
		if len(previous.Transcripts) == len(next.Transcripts) {
			next.Transcripts = previous.Transcripts
		} else {
			next.Transcripts = slices.Clone(next.Transcripts)
		}
		o.state = next
	}
	o.stateMu.Unlock()

	if changed {
		o.emitState(next)
	}
}
