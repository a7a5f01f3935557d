package audio

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestFloat32ToPCM16ClampsAndEncodesLittleEndian(t *testing.T) {
	got := Float32ToPCM16([]float32{0, 1, -1, 2, 0.5})

	want := []byte{
		0x00, 0x00,
		0xff, 0x7f,
		0x00, 0x80,
		0xff, 0x7f,
		0x00, 0x40,
	}
	if string(got) != string(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDecodeBase64PCMRoundTripsEncodedFrame(t *testing.T) {
	encoded := EncodeBase64PCM([]float32{0, 0.5, -0.5})

	samples, err := DecodeBase64PCM(encoded)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[1] != 0.5 || samples[2] != -0.5 {
		t.Fatalf("expected samples to survive round trip, got %v", samples)
	}
}

func TestDecodeBase64PCMRejectsMalformedPayloads(t *testing.T) {
	if _, err := DecodeBase64PCM("not base64!"); err == nil {
		t.Fatalf("expected invalid base64 to fail")
	}

	odd := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	if _, err := DecodeBase64PCM(odd); !errors.Is(err, ErrOddPCMLength) {
		t.Fatalf("expected odd length error, got %v", err)
	}
}

func TestEncodingInfoDurationAndMIMEType(t *testing.T) {
	info := GetPlaybackEncodingInfo()

	if got := info.Duration(24000); got != time.Second {
		t.Fatalf("expected one second, got %v", got)
	}
	if got := info.Samples(500 * time.Millisecond); got != 12000 {
		t.Fatalf("expected 12000 samples, got %d", got)
	}
	if got := GetCaptureEncodingInfo().MIMEType(); got != "audio/pcm;rate=16000" {
		t.Fatalf("expected capture mime type, got %q", got)
	}
}
