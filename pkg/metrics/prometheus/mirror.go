package prometheus

import (
	"time"

	"github.com/marmos91/docmirror/pkg/metrics"
	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// mirrorMetrics is the Prometheus implementation of mirror.Metrics.
type mirrorMetrics struct {
	fetchesTotal   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	syncsTotal     *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	lastSyncFiles  prometheus.Gauge
	lastSyncBytes  prometheus.Gauge
	lastSuccessful prometheus.Gauge
}

// NewMirrorMetrics creates a Prometheus-backed mirror.Metrics.
func NewMirrorMetrics(reg *prometheus.Registry) mirror.Metrics {
	if reg == nil {
		return nil
	}

	return &mirrorMetrics{
		fetchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_fetches_total",
				Help:      "Total number of object fetch-and-write tasks by status",
			},
			[]string{"status"},
		),
		fetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_fetch_duration_seconds",
				Help:      "Duration of a single object fetch-and-write task",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		syncsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_syncs_total",
				Help:      "Total number of clean downloads by status",
			},
			[]string{"status"},
		),
		syncDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_sync_duration_seconds",
				Help:      "Duration of clean downloads",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		lastSyncFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_last_sync_files",
				Help:      "Files written by the most recent clean download",
			},
		),
		lastSyncBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_last_sync_bytes",
				Help:      "Bytes written by the most recent clean download",
			},
		),
		lastSuccessful: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "mirror_last_success_timestamp_seconds",
				Help:      "Unix time of the most recent successful clean download",
			},
		),
	}
}

func (m *mirrorMetrics) ObserveFetch(duration time.Duration, bytes int, err error) {
	m.fetchesTotal.WithLabelValues(status(err)).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

func (m *mirrorMetrics) ObserveSync(duration time.Duration, result mirror.Result, err error) {
	m.syncsTotal.WithLabelValues(status(err)).Inc()
	m.syncDuration.Observe(duration.Seconds())
	m.lastSyncFiles.Set(float64(result.Written))
	m.lastSyncBytes.Set(float64(result.Bytes))
	if err == nil {
		m.lastSuccessful.SetToCurrentTime()
	}
}
