// Package metrics exposes Prometheus collectors for proxied traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradedev"

// Metrics owns a private registry so tests and multiple servers do not collide
// on the global one.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by rule prefix and response status code.",
		}, []string{"rule", "code"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "upstream_errors_total",
			Help:      "Proxied requests that failed before an upstream response arrived.",
		}, []string{"rule"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Time from receiving a proxied request to finishing its response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.upstreamErrors,
		m.duration,
	)
	return m
}

// ObserveProxy records one completed proxied request.
func (m *Metrics) ObserveProxy(prefix string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(prefix, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(prefix).Observe(elapsed.Seconds())
}

// ObserveUpstreamError records a transport-level upstream failure.
func (m *Metrics) ObserveUpstreamError(prefix string) {
	m.upstreamErrors.WithLabelValues(prefix).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
