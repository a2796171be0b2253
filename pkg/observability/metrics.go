// Package observability provides Prometheus metrics for monitoring the
// anfrage client.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// TurnsTotal counts turns by provider, model, and terminal status.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anfrage_turns_total",
			Help: "Completed turns",
		},
		[]string{"provider", "model", "status"},
	)

	// TurnDuration records wall-clock turn duration in seconds, from
	// send to terminal event.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anfrage_turn_duration_seconds",
			Help:    "Turn duration",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// RetriesTotal counts retried attempts by error class.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anfrage_retries_total",
			Help: "Retried attempts",
		},
		[]string{"provider", "class"},
	)

	// TokensTotal counts tokens by direction (input/output), taken from
	// the terminal usage block only.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anfrage_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ActiveStreams tracks turns whose event stream is currently open.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anfrage_active_streams",
			Help: "Active event streams",
		},
	)

	// ChainLength records how many turns deep a session chain was when
	// a turn completed.
	ChainLength = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anfrage_chain_length",
			Help:    "Session chain depth at turn completion",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		TurnsTotal,
		TurnDuration,
		RetriesTotal,
		TokensTotal,
		ActiveStreams,
		ChainLength,
	)
}
