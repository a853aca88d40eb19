package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	AuthAttempts    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	Errors          *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Total query builder terminals by backend, table, operation and outcome.",
			}, []string{"backend", "table", "op", "status"}),
			BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Latency distribution of query builder terminals.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"backend", "op"}),
			AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Sign-in attempts by backend and outcome.",
			}, []string{"backend", "outcome"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP API requests by route and status code.",
			}, []string{"route", "code"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.BackendRequests,
			metricsInstance.BackendLatency,
			metricsInstance.AuthAttempts,
			metricsInstance.HTTPRequests,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// ObserveBackend records one terminal call. kind is the error kind, empty on success.
func (m *Metrics) ObserveBackend(backend, table, op, kind string, elapsed time.Duration) {
	status := kind
	if status == "" {
		status = "ok"
	}
	m.BackendRequests.WithLabelValues(backend, table, op, status).Inc()
	m.BackendLatency.WithLabelValues(backend, op).Observe(elapsed.Seconds())
}
