package orchestration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions_active",
		Help: "Currently active live sessions",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_sessions_total",
		Help: "Live sessions by outcome",
	}, []string{"outcome"})

	handshakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_handshake_duration_seconds",
		Help:    "Time from start request to listening",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	audioFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_frames_sent_total",
		Help: "Captured audio frames handed to the live session",
	})

	audioFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_frames_dropped_total",
		Help: "Captured audio frames dropped because the send queue was full",
	})

	playbackUnitsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_playback_units_scheduled_total",
		Help: "Inline audio payloads scheduled for playback",
	})

	playbackPayloadsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_playback_payloads_dropped_total",
		Help: "Inline audio payloads that were not played",
	}, []string{"reason"})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_interruptions_total",
		Help: "Agent playback interrupted by the user",
	})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_tool_calls_total",
		Help: "Tool invocations by outcome",
	}, []string{"tool", "outcome"})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_retrieval_duration_seconds",
		Help:    "Tool execution latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
	})
)

const (
	dropReasonDecode   = "decode"
	dropReasonNoOutput = "no_output"
	dropReasonSchedule = "schedule"

	toolOutcomeAnswered = "answered"
	toolOutcomeFailed   = "failed"
	toolOutcomeIgnored  = "ignored"

	sessionOutcomeStopped = "stopped"
	sessionOutcomeFailed  = "failed"
	sessionOutcomeClosed  = "remote_closed"
)
