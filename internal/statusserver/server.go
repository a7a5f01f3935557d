// Package statusserver exposes the running session over HTTP: a JSON status
// document and the Prometheus metrics registry.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	orchestration "github.com/koscakluka/ema-live/core"
)

const shutdownTimeout = 5 * time.Second

// StateSource is satisfied by *orchestration.Orchestrator.
type StateSource interface {
	Snapshot() orchestration.Snapshot
}

type Server struct {
	server   *http.Server
	listener net.Listener
}

type statusResponse struct {
	SessionID          string            `json:"session_id,omitempty"`
	Status             string            `json:"status"`
	Active             bool              `json:"active"`
	Transcripts        []transcriptEntry `json:"transcripts"`
	Pending            pendingText       `json:"pending"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	ScheduledUnits     int               `json:"scheduled_units"`
	ToolLookupsPending int               `json:"tool_lookups_pending"`
}

type transcriptEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type pendingText struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// NewHandler builds the instrumented mux without binding a listener.
func NewHandler(source StateSource) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", statusHandler(source))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return otelhttp.NewHandler(mux, "livesupport status")
}

// Listen binds addr and serves in the background until Shutdown.
func Listen(addr string, source StateSource) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		server:   &http.Server{Handler: NewHandler(source), ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "error", err)
		}
	}()

	logger.Info("status server listening", "addr", listener.Addr().String())
	return s, nil
}

func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func statusHandler(source StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := sonic.Marshal(newStatusResponse(source.Snapshot()))
		if err != nil {
			logger.Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

func newStatusResponse(snapshot orchestration.Snapshot) statusResponse {
	transcripts := make([]transcriptEntry, 0, len(snapshot.Transcripts))
	for _, entry := range snapshot.Transcripts {
		transcripts = append(transcripts, transcriptEntry{Speaker: string(entry.Speaker), Text: entry.Text})
	}

	return statusResponse{
		SessionID:          snapshot.SessionID,
		Status:             string(snapshot.Status),
		Active:             snapshot.Status.IsActive(),
		Transcripts:        transcripts,
		Pending:            pendingText{User: snapshot.Pending.User, Agent: snapshot.Pending.Agent},
		ErrorMessage:       snapshot.ErrorMessage,
		ScheduledUnits:     snapshot.ScheduledUnits,
		ToolLookupsPending: snapshot.ToolLookupsPending,
	}
}
