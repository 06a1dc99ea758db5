package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/docmirror/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics.
//
// Returns a no-op implementation for a nil registry.
func NewHTTPMetrics(reg *prometheus.Registry) metrics.HTTPMetrics {
	if reg == nil {
		return metrics.NewNoopHTTPMetrics()
	}

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		rateLimited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		authFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_auth_failures_total",
				Help:      "Total number of requests rejected by authentication",
			},
			[]string{"route"},
		),
	}
}

func (m *httpMetrics) RecordRequest(route string, code int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *httpMetrics) RecordAuthFailure(route string) {
	m.authFailures.WithLabelValues(route).Inc()
}
