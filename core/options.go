package orchestration

import (
	"context"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/live"
)

type OrchestratorOption func(*Orchestrator)

// WithConnector sets the transport used to open remote sessions.
func WithConnector(connector live.Connector) OrchestratorOption {
	return func(o *Orchestrator) {
		if isNilInterface(connector) {
			o.connector = nil
			return
		}
		o.connector = connector
	}
}

func WithMicrophone(opener audio.MicrophoneOpener) OrchestratorOption {
	return func(o *Orchestrator) { o.devices.SetMicrophone(opener) }
}

// WithAudioOutput sets the speaker. Without one, inline audio is dropped.
func WithAudioOutput(opener audio.OutputOpener) OrchestratorOption {
	return func(o *Orchestrator) { o.devices.SetOutput(opener) }
}

type AudioDevice interface {
	audio.MicrophoneOpener
	audio.OutputOpener
}

// WithAudioDevice uses one backend for both capture and playback.
func WithAudioDevice(device AudioDevice) OrchestratorOption {
	return func(o *Orchestrator) {
		o.devices.SetMicrophone(device)
		o.devices.SetOutput(device)
	}
}

// WithRetriever answers lookupInspectionManual calls with retriever instead
// of the built-in sample manual.
func WithRetriever(retriever Retriever) OrchestratorOption {
	return func(o *Orchestrator) {
		if isNilInterface(retriever) {
			return
		}
		o.tools.register(lookupInspectionManual(retriever))
	}
}

// WithTools registers additional tools. A tool with an existing name
// replaces the earlier one.
func WithTools(tools ...Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.tools.register(tools...) }
}

// WithLiveConfig replaces the session configuration. Registered tool
// declarations are appended to config.Tools at start.
func WithLiveConfig(config live.Config) OrchestratorOption {
	return func(o *Orchestrator) { o.liveConfig = config }
}

// WithCaptureWindow sets how many samples go into each outbound frame.
func WithCaptureWindow(samples int) OrchestratorOption {
	return func(o *Orchestrator) {
		if samples > 0 {
			o.captureWindow = samples
		}
	}
}

// WithStateChangedCallback registers a callback for observable state
// updates.
//
// The callback runs on the control loop with a private copy of the state. It
// must not block and must not call Start or Stop synchronously.
func WithStateChangedCallback(callback func(Snapshot)) OrchestratorOption {
	return func(o *Orchestrator) { o.emitState = newCallbackStateEmitter(callback) }
}

// WithBaseContext sets the context sessions and tool calls derive from.
func WithBaseContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.baseContext = ctx
		}
	}
}
