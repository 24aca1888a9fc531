package metrics

import (
	"time"

	"taxlab-hq/ledger/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks API requests.
//
// Metrics:
//   - ledger_api_requests_total: requests by country, endpoint and status code class
//   - ledger_api_request_duration_seconds: request latency by country and endpoint
//   - ledger_api_requests_in_flight: requests currently being served
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics with registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of API requests served",
			},
			[]string{"country", "endpoint", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"country", "endpoint"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_in_flight",
				Help:      "Number of API requests currently being served",
			},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration, rm.inFlight)
	return rm
}

// RecordRequest records a completed request. status is the HTTP status
// class ("2xx", "4xx", "5xx").
func (rm *RequestMetrics) RecordRequest(country, endpoint, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(country, endpoint, status).Inc()
	rm.requestDuration.WithLabelValues(country, endpoint).Observe(duration.Seconds())
}

// Started and Finished bracket a request for the in-flight gauge.
func (rm *RequestMetrics) Started()  { rm.inFlight.Inc() }
func (rm *RequestMetrics) Finished() { rm.inFlight.Dec() }
