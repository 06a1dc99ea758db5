package config

import (
	"github.com/marmos91/docmirror/pkg/deploy"
	"github.com/marmos91/docmirror/pkg/metrics"
	promMetrics "github.com/marmos91/docmirror/pkg/metrics/prometheus"
	"github.com/marmos91/docmirror/pkg/mirror"
	storeS3 "github.com/marmos91/docmirror/pkg/store/s3"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
//
// The component collectors are nil when metrics are disabled; every consumer
// treats nil as a no-op.
type MetricsResult struct {
	// Registry backs every collector below (nil if disabled)
	Registry *prometheus.Registry

	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	S3     storeS3.S3Metrics
	Mirror mirror.Metrics
	Deploy deploy.Metrics

	// HTTP is never nil, uses noop if disabled
	HTTP metrics.HTTPMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Creates a dedicated Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server and collectors
//   - Returns a no-op HTTP metrics implementation
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			HTTP: metrics.NewNoopHTTPMetrics(),
		}
	}

	reg := metrics.NewRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:     cfg.Metrics.Port,
		Registry: reg,
	})

	return &MetricsResult{
		Registry: reg,
		Server:   server,
		S3:       promMetrics.NewS3Metrics(reg),
		Mirror:   promMetrics.NewMirrorMetrics(reg),
		Deploy:   promMetrics.NewDeployMetrics(reg),
		HTTP:     promMetrics.NewHTTPMetrics(reg),
	}
}
