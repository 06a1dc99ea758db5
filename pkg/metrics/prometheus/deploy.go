package prometheus

import (
	"time"

	"github.com/marmos91/docmirror/pkg/deploy"
	"github.com/marmos91/docmirror/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// deployMetrics is the Prometheus implementation of deploy.Metrics.
type deployMetrics struct {
	deploysTotal   *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec
	phaseDuration  *prometheus.HistogramVec
}

// NewDeployMetrics creates a Prometheus-backed deploy.Metrics.
func NewDeployMetrics(reg *prometheus.Registry) deploy.Metrics {
	if reg == nil {
		return nil
	}

	return &deployMetrics{
		deploysTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "deploys_total",
				Help:      "Total number of archive deploys by format and outcome",
			},
			[]string{"format", "outcome"},
		),
		deployDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of archive deploys",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"format"},
		),
		phaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "deploy_phase_duration_seconds",
				Help:      "Duration of deploy phases (persist, backup, clear, unpack, restore)",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"phase"},
		),
	}
}

func (m *deployMetrics) ObserveDeploy(format string, duration time.Duration, outcome string) {
	m.deploysTotal.WithLabelValues(format, outcome).Inc()
	m.deployDuration.WithLabelValues(format).Observe(duration.Seconds())
}

func (m *deployMetrics) ObservePhase(phase string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}
