package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrOddPCMLength = errors.New("pcm payload has an odd number of bytes")

// Float32ToPCM16 converts normalized samples to 16-bit little-endian PCM.
// Values outside [-1, 1] are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := float64(sample) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 converts 16-bit little-endian PCM to normalized samples.
func PCM16ToFloat32(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddPCMLength
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// Float32FromBytes reinterprets little-endian IEEE-754 bytes as samples, as
// delivered by float capture devices.
func Float32FromBytes(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// EncodeBase64PCM is the outbound framing the remote session expects.
func EncodeBase64PCM(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

// DecodeBase64PCM reverses the inbound inline-audio framing.
func DecodeBase64PCM(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio payload: %w", err)
	}

	samples, err := PCM16ToFloat32(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid pcm audio payload: %w", err)
	}
	return samples, nil
}
