// Package config loads the livesupport binary configuration from an
// optional YAML file, then applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	orchestration "github.com/koscakluka/ema-live/core"
)

const (
	TransportWebsocket = "websocket"
	TransportGenAI     = "genai"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortAudio = "portaudio"
)

type Config struct {
	APIKey            string `yaml:"api_key"`
	Transport         string `yaml:"transport"`
	Model             string `yaml:"model"`
	Voice             string `yaml:"voice"`
	SystemInstruction string `yaml:"system_instruction"`

	AudioBackend        string `yaml:"audio_backend"`
	CaptureWindow       int    `yaml:"capture_window"`
	PortAudioBufferSize int    `yaml:"portaudio_buffer_size"`

	// ManualPath replaces the built-in sample manual when set.
	ManualPath string `yaml:"manual_path"`
	// StatusAddr enables the status/metrics HTTP server when set.
	StatusAddr string `yaml:"status_addr"`
	LogFile    string `yaml:"log_file"`
}

func Default() Config {
	return Config{
		Transport:           TransportWebsocket,
		Model:               orchestration.DefaultModel,
		Voice:               orchestration.DefaultVoice,
		SystemInstruction:   orchestration.DefaultSystemInstruction,
		AudioBackend:        AudioBackendMiniaudio,
		CaptureWindow:       4096,
		PortAudioBufferSize: 1024,
		LogFile:             "livesupport.log",
	}
}

// Load reads path (if not empty) over the defaults and applies environment
// overrides. A missing API key is not an error here; the transport reports
// it when a session is opened.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = envStr("GEMINI_API_KEY", envStr("API_KEY", c.APIKey))
	c.Transport = envStr("LIVE_TRANSPORT", c.Transport)
	c.Model = envStr("LIVE_MODEL", c.Model)
	c.Voice = envStr("LIVE_VOICE", c.Voice)
	c.AudioBackend = envStr("LIVE_AUDIO_BACKEND", c.AudioBackend)
	c.CaptureWindow = envInt("LIVE_CAPTURE_WINDOW", c.CaptureWindow)
	c.ManualPath = envStr("LIVE_MANUAL_PATH", c.ManualPath)
	c.StatusAddr = envStr("LIVE_STATUS_ADDR", c.StatusAddr)
	c.LogFile = envStr("LIVE_LOG_FILE", c.LogFile)
}

func (c Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportWebsocket, TransportGenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortAudio:
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.AudioBackend))
	}

	if c.Model == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.CaptureWindow <= 0 {
		errs = append(errs, fmt.Errorf("capture window must be positive, got %d", c.CaptureWindow))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
