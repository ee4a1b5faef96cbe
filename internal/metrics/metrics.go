// Package metrics defines the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for completions.
const (
	OutcomeComplete      = "complete"
	OutcomeTimeout       = "timeout"
	OutcomeInputNotFound = "input_not_found"
	OutcomeError         = "error"
)

// Metrics holds all collectors.
type Metrics struct {
	Completions     *prometheus.CounterVec
	PollDuration    *prometheus.HistogramVec
	ChunksEmitted   prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	RateLimited     prometheus.Counter
	SessionOpenings *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_completions_total",
				Help: "Chat completions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		PollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_poll_duration_seconds",
				Help:    "Time spent waiting for the chat page to finish responding",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"mode"},
		),
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_stream_chunks_total",
			Help: "Streaming deltas emitted",
		}),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		SessionOpenings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_session_opens_total",
				Help: "Browser session open attempts by result",
			},
			[]string{"result"},
		),
		registry: reg,
	}
}

// WatchReady exports ready() as the bridge_session_ready gauge.
func (m *Metrics) WatchReady(ready func() bool) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "bridge_session_ready",
			Help: "1 when the browser session is open",
		},
		func() float64 {
			if ready() {
				return 1
			}
			return 0
		},
	)
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
