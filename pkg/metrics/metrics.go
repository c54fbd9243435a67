// Package metrics exposes Prometheus collectors for the generation pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "iconforge"

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
}

// New registers the pipeline collectors and the Go runtime collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Icon generation requests by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansion_cache_lookups_total",
			Help:      "Expansion cache lookups by result.",
		}, []string{"result"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of upstream expansion and generation calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"upstream", "status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_requests_inflight",
			Help:      "Icon generation requests currently being processed.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.cacheLookups,
		m.upstreamDuration,
		m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(outcome, kind string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome, kind).Inc()
}

// ObserveCacheLookup counts a cache lookup by its result.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(upstream string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.upstreamDuration.WithLabelValues(upstream, status).Observe(d.Seconds())
}

// TrackInflight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInflight() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}
