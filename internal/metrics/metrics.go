// Package metrics provides Prometheus metrics for skylens.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analyzer.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	GraphFetchTotal  *prometheus.CounterVec
	CacheTotal       *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram
	StreamEvents     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "skylens_sessions_active",
				Help: "Number of live analysis sessions.",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "skylens_sessions_total",
				Help: "Total number of analysis sessions created.",
			},
		),
		GraphFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skylens_graph_fetches_total",
				Help: "Total follow-set and profile fetches by source and status.",
			},
			[]string{"source", "status"},
		),
		CacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skylens_cache_requests_total",
				Help: "Cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skylens_snapshot_duration_seconds",
				Help:    "Time spent building ranked snapshots.",
				Buckets: prometheus.DefBuckets,
			},
		),
		StreamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skylens_stream_events_total",
				Help: "SSE events pushed to consumers by type.",
			},
			[]string{"type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.SessionsActive)
	reg.MustRegister(m.SessionsTotal)
	reg.MustRegister(m.GraphFetchTotal)
	reg.MustRegister(m.CacheTotal)
	reg.MustRegister(m.SnapshotDuration)
	reg.MustRegister(m.StreamEvents)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch increments the graph fetch counter.
func (m *Metrics) RecordFetch(source, status string) {
	m.GraphFetchTotal.WithLabelValues(source, status).Inc()
}

// RecordCache increments the cache result counter.
func (m *Metrics) RecordCache(result string) {
	m.CacheTotal.WithLabelValues(result).Inc()
}

// RecordStreamEvent increments the stream event counter.
func (m *Metrics) RecordStreamEvent(eventType string) {
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// SessionStarted tracks a new session.
func (m *Metrics) SessionStarted() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded tracks a removed session.
func (m *Metrics) SessionEnded() {
	m.SessionsActive.Dec()
}

// ObserveSnapshot records snapshot build duration.
func (m *Metrics) ObserveSnapshot(seconds float64) {
	m.SnapshotDuration.Observe(seconds)
}
