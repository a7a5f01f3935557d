package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-live/core/audio"
)

// playbackDevice pulls mixed audio from an [audio.Mixer] in the device
// callback, so the mixer's frame counter doubles as the output clock.
type playbackDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig
	mixer  *audio.Mixer

	frameBuffer []float32

	mu sync.Mutex
}

func (c *playbackDevice) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := audio.EncodingInfo{SampleRate: audio.PlaybackSampleRate, Channels: 1, Format: audio.EncodingFloat32}
	c.mixer = audio.NewMixer(info)

	format := malgo.FormatF32
	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = uint32(info.SampleRate)
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(info.Channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = uint32(info.SampleRate) / 50 // ~20ms of audio
	c.config.Periods = 3

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(malgo.SampleSizeInBytes(format))},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackDevice) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackDevice) EncodingInfo() audio.EncodingInfo {
	return c.mixer.EncodingInfo()
}

func (c *playbackDevice) CurrentTime() time.Duration {
	return c.mixer.CurrentTime()
}

func (c *playbackDevice) Schedule(unit audio.PlaybackUnit, onEnded func()) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("device not started")
	}
	return c.mixer.Schedule(unit, onEnded)
}

func (c *playbackDevice) Stop(id uint64) {
	c.mixer.Stop(id)
}

func (c *playbackDevice) Close() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}

	c.mixer.Clear()
	var err error
	if device.IsStarted() {
		if stopErr := device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop playback device: %w", stopErr)
		}
	}
	device.Uninit()
	return err
}

func (c *playbackDevice) processAudio(bytesPerSample int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount)
		if len(pOutput) < need*bytesPerSample {
			return
		}
		if cap(c.frameBuffer) < need {
			c.frameBuffer = make([]float32, need)
		}
		frames := c.frameBuffer[:need]

		ended := c.mixer.Render(frames)
		for i, sample := range frames {
			binary.LittleEndian.PutUint32(pOutput[i*bytesPerSample:], math.Float32bits(sample))
		}

		if len(ended) > 0 {
			go func() {
				for _, callback := range ended {
					callback()
				}
			}()
		}
	}
}
