package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat turn outcomes.
const (
	OutcomeReplied = "replied"
	OutcomeBlocked = "blocked"
	OutcomeFailed  = "failed"
)

var (
	once sync.Once

	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns by outcome (replied/blocked/failed).",
		},
		[]string{"outcome"},
	)

	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_latency_ms",
			Help:    "Completion call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
		[]string{"model", "success"},
	)

	transcriptPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcript_persist_failures_total",
			Help: "Failed writes of a transcript file.",
		},
	)

	transcriptResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcript_resets_total",
			Help: "Transcript resets, including those triggered by config saves.",
		},
	)

	configSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_saves_total",
			Help: "Persona config saves by result.",
		},
		[]string{"success"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			chatTurns, completionLatencyMs,
			transcriptPersistFailures, transcriptResets,
			configSaves,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	MustRegister()
	return promhttp.Handler()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// -------- Chat helpers --------

func IncChatTurn(outcome string) {
	chatTurns.WithLabelValues(outcome).Inc()
}

func ObserveCompletion(model string, elapsed time.Duration, success bool) {
	completionLatencyMs.WithLabelValues(norm(model), boolLabel(success)).
		Observe(float64(elapsed.Milliseconds()))
}

// -------- Storage helpers --------

func IncPersistFailure() {
	transcriptPersistFailures.Inc()
}

func IncReset() {
	transcriptResets.Inc()
}

func IncConfigSave(success bool) {
	configSaves.WithLabelValues(boolLabel(success)).Inc()
}
