// Command livesupport is a hands-free field assistant for property
// inspectors: it holds a live voice session with a remote agent that can look
// procedures up in the inspection manual.
package main

import (
	"context"
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio/miniaudio"
	"github.com/koscakluka/ema-live/core/audio/portaudio"
	"github.com/koscakluka/ema-live/core/live"
	"github.com/koscakluka/ema-live/core/live/gemini"
	livegenai "github.com/koscakluka/ema-live/core/live/genai"
	"github.com/koscakluka/ema-live/core/retrieval"
	"github.com/koscakluka/ema-live/internal/config"
	"github.com/koscakluka/ema-live/internal/statusserver"
)

type audioBackend interface {
	orchestration.AudioDevice
	Close()
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownLogging, err := setupLogging(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer shutdownLogging()

	backend, err := newAudioBackend(cfg)
	if err != nil {
		log.Fatalf("failed to initialize audio: %v", err)
	}
	defer backend.Close()

	opts := []orchestration.OrchestratorOption{
		orchestration.WithConnector(newConnector(cfg)),
		orchestration.WithAudioDevice(backend),
		orchestration.WithLiveConfig(newLiveConfig(cfg)),
		orchestration.WithCaptureWindow(cfg.CaptureWindow),
	}
	if cfg.ManualPath != "" {
		manual, err := retrieval.LoadManual(cfg.ManualPath)
		if err != nil {
			log.Fatalf("failed to load manual: %v", err)
		}
		opts = append(opts, orchestration.WithRetriever(manual))
	}

	updates := make(chan struct{}, 1)
	opts = append(opts, orchestration.WithStateChangedCallback(func(orchestration.Snapshot) {
		select {
		case updates <- struct{}{}:
		default:
		}
	}))

	o := orchestration.NewOrchestrator(opts...)
	defer o.Close()

	if cfg.StatusAddr != "" {
		server, err := statusserver.Listen(cfg.StatusAddr, o)
		if err != nil {
			log.Fatalf("failed to start status server: %v", err)
		}
		defer server.Shutdown(context.Background())
	}

	program := tea.NewProgram(newModel(o, updates), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Printf("terminal UI failed: %v", err)
	}
}

func newAudioBackend(cfg config.Config) (audioBackend, error) {
	switch cfg.AudioBackend {
	case config.AudioBackendPortAudio:
		return portaudio.NewClient(cfg.PortAudioBufferSize)
	default:
		return miniaudio.NewClient()
	}
}

func newConnector(cfg config.Config) live.Connector {
	switch cfg.Transport {
	case config.TransportGenAI:
		return livegenai.NewClient(livegenai.WithAPIKey(cfg.APIKey))
	default:
		return gemini.NewClient(gemini.WithAPIKey(cfg.APIKey))
	}
}

func newLiveConfig(cfg config.Config) live.Config {
	liveConfig := orchestration.DefaultLiveConfig()
	liveConfig.Model = cfg.Model
	liveConfig.Voice = cfg.Voice
	liveConfig.SystemInstruction = cfg.SystemInstruction
	return liveConfig
}
