// Package obsmetrics exposes Prometheus collectors for HTTP and broker
// consumer activity, shared across services.
package obsmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics tracks request counts and latency by route and status.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP collectors against reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Observe records one completed request.
func (m *HTTPMetrics) Observe(route, status string, d time.Duration) {
	m.requests.WithLabelValues(route, status).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}

// ConsumerMetrics tracks broker consumer throughput by queue and outcome.
type ConsumerMetrics struct {
	processed *prometheus.CounterVec
}

// NewConsumerMetrics registers the consumer collectors against reg.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	return &ConsumerMetrics{
		processed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_messages_processed_total",
			Help: "Total messages processed by queue and outcome.",
		}, []string{"queue", "outcome"}),
	}
}

// Observe records the outcome ("ack", "requeue", "drop") of one delivery.
func (m *ConsumerMetrics) Observe(queue, outcome string) {
	m.processed.WithLabelValues(queue, outcome).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
