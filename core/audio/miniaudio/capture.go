package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-live/core/audio"
)

type captureDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig
	info   audio.EncodingInfo

	onSamples func(samples []float32)

	mu sync.Mutex
}

func (c *captureDevice) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info = audio.EncodingInfo{SampleRate: audio.CaptureSampleRate, Channels: 1, Format: audio.EncodingFloat32}
	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * c.info.Channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(c.info.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(c.info.Channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.mu.Lock()
			onSamples := c.onSamples
			c.mu.Unlock()
			if onSamples != nil {
				onSamples(audio.Float32FromBytes(pInput[:n]))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureDevice) EncodingInfo() audio.EncodingInfo {
	return c.info
}

func (c *captureDevice) StartCapture(_ context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.onSamples = onSamples
	if err := c.device.Start(); err != nil {
		c.onSamples = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Close stops capture and releases the device. Repeated calls are no-ops.
func (c *captureDevice) Close() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.onSamples = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}

	var err error
	if device.IsStarted() {
		if stopErr := device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture device: %w", stopErr)
		}
	}
	device.Uninit()
	return err
}
