// Package metrics provides Prometheus metrics collection for docmirror
// components.
//
// All metrics are optional. Components accept a small metrics interface and
// fall back to a no-op implementation when given nil, so the service runs
// with or without collection enabled.
//
// Usage:
//
//	// Create a registry (typically in main.go, only when metrics are enabled)
//	reg := metrics.NewRegistry()
//
//	// Create metrics instances for components
//	s3Metrics := prometheus.NewS3Metrics(reg)
//	syncMetrics := prometheus.NewMirrorMetrics(reg)
//
//	// Or pass nil for no-op behavior
//	synchronizer, _ := mirror.New(mirror.Config{..., Metrics: nil})
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every docmirror metric name.
const Namespace = "docmirror"

// NewRegistry creates a Prometheus registry preloaded with the Go runtime
// and process collectors.
//
// The registry is passed explicitly to every metrics constructor; a nil
// registry means metrics are disabled.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
