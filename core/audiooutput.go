package orchestration

import (
	"context"
	"reflect"

	"github.com/koscakluka/ema-live/core/audio"
)

// audioDevices normalizes the configured device openers.
//
// Nil and typed-nil openers are treated as unconfigured: a session without an
// output still runs and silently drops inline audio, while a session without
// a microphone cannot start.
type audioDevices struct {
	microphone audio.MicrophoneOpener
	output     audio.OutputOpener
}

func (d *audioDevices) SetMicrophone(opener audio.MicrophoneOpener) {
	if isNilInterface(opener) {
		d.microphone = nil
		return
	}
	d.microphone = opener
}

func (d *audioDevices) SetOutput(opener audio.OutputOpener) {
	if isNilInterface(opener) {
		d.output = nil
		return
	}
	d.output = opener
}

func (d *audioDevices) hasMicrophone() bool { return d.microphone != nil }

// openOutput returns a nil output without error when none is configured.
func (d *audioDevices) openOutput(ctx context.Context) (audio.Output, error) {
	if d.output == nil {
		return nil, nil
	}

	output, err := d.output.OpenOutput(ctx)
	if err != nil {
		return nil, &AcquisitionError{Device: "audio output", Err: err}
	}
	if isNilInterface(output) {
		return nil, nil
	}
	return output, nil
}

// isNilInterface detects nil and typed-nil interface values so options can
// avoid storing unusable interface wrappers as configured clients.
func isNilInterface(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
