package audio

import (
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the rate the remote session expects microphone
	// audio at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate synthesized speech arrives at.
	PlaybackSampleRate = 24000

	DefaultFormat = "linear16"
)

func GetCaptureEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: CaptureSampleRate, Channels: 1, Format: EncodingLinear16}
}

func GetPlaybackEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: PlaybackSampleRate, Channels: 1, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// MIMEType returns the tag the remote session uses to identify raw PCM
// frames, e.g. "audio/pcm;rate=16000".
func (e EncodingInfo) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", e.SampleRate)
}

// Duration reports how long the given number of samples (per channel) plays
// for at this encoding's sample rate.
func (e EncodingInfo) Duration(samples int) time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(e.SampleRate) * float64(time.Second))
}

// Samples is the inverse of [EncodingInfo.Duration], rounded to the nearest
// sample.
func (e EncodingInfo) Samples(duration time.Duration) int {
	return int(math.Round(float64(duration) / float64(time.Second) * float64(e.SampleRate)))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	case EncodingFloat32:
		return 4
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)
