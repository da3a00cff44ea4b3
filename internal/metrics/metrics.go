// Package metrics provides Prometheus metrics for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	EventsApplied      *prometheus.CounterVec
	BootstrapRuns      *prometheus.CounterVec
	BootstrapsInFlight prometheus.Gauge
	CacheEvictions     *prometheus.CounterVec
	RemoteErrors       *prometheus.CounterVec
	RemoteRetries      *prometheus.CounterVec
	SessionsRetained   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_events_applied_total",
				Help: "Total remote events applied by type.",
			},
			[]string{"type"},
		),
		BootstrapRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_bootstrap_runs_total",
				Help: "Total bootstrap runs by kind (root or workspace) and outcome.",
			},
			[]string{"kind", "status"},
		),
		BootstrapsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirror_bootstraps_in_flight",
				Help: "Number of per-workspace bootstraps currently running.",
			},
		),
		CacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_cache_evictions_total",
				Help: "Total bounded-cache evictions by cache name.",
			},
			[]string{"cache"},
		),
		RemoteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_remote_errors_total",
				Help: "Total remote API errors by operation.",
			},
			[]string{"op"},
		),
		RemoteRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_remote_retries_total",
				Help: "Total remote API retries by operation.",
			},
			[]string{"op"},
		),
		SessionsRetained: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mirror_sessions_retained",
				Help: "Sessions currently materialized per workspace.",
			},
			[]string{"directory"},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsApplied)
	reg.MustRegister(m.BootstrapRuns)
	reg.MustRegister(m.BootstrapsInFlight)
	reg.MustRegister(m.CacheEvictions)
	reg.MustRegister(m.RemoteErrors)
	reg.MustRegister(m.RemoteRetries)
	reg.MustRegister(m.SessionsRetained)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent increments the applied-event counter.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsApplied.WithLabelValues(eventType).Inc()
}

// RecordBootstrap increments the bootstrap counter.
func (m *Metrics) RecordBootstrap(kind, status string) {
	m.BootstrapRuns.WithLabelValues(kind, status).Inc()
}

// RecordEviction increments the cache eviction counter.
func (m *Metrics) RecordEviction(cache string) {
	m.CacheEvictions.WithLabelValues(cache).Inc()
}

// RecordRemoteError increments the remote error counter.
func (m *Metrics) RecordRemoteError(op string) {
	m.RemoteErrors.WithLabelValues(op).Inc()
}

// RecordRemoteRetry increments the remote retry counter.
func (m *Metrics) RecordRemoteRetry(op string) {
	m.RemoteRetries.WithLabelValues(op).Inc()
}

// SetSessionsRetained sets the retained-session count for a workspace.
func (m *Metrics) SetSessionsRetained(directory string, n float64) {
	m.SessionsRetained.WithLabelValues(directory).Set(n)
}
