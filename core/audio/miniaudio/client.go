package miniaudio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-live/core/audio"
)

var (
	_ audio.MicrophoneOpener = (*Client)(nil)
	_ audio.OutputOpener     = (*Client)(nil)
)

// Client owns the miniaudio context. Devices opened from it are released
// individually; the context itself lives until Close.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	closeOnce sync.Once
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {}, //log.Println("malgo:", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	return &Client{audioContext: audioCtx}, nil
}

// OpenMicrophone acquires the default capture device at the capture rate.
// Capture does not begin until StartCapture.
func (c *Client) OpenMicrophone(_ context.Context) (audio.Microphone, error) {
	capture := &captureDevice{}
	if err := capture.Init(c.audioContext); err != nil {
		return nil, err
	}
	return capture, nil
}

// OpenOutput acquires and starts the default playback device.
func (c *Client) OpenOutput(_ context.Context) (audio.Output, error) {
	playback := &playbackDevice{}
	if err := playback.Init(c.audioContext); err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := playback.Start(); err != nil {
		_ = playback.Close()
		return nil, err
	}
	return playback, nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if err := c.audioContext.Uninit(); err != nil {
			log.Printf("Failed to uninitialize audio context: %v", err)
		}
		c.audioContext.Free()
	})
}
