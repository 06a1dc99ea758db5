package mirror

import "time"

// Metrics provides observability for mirror operations.
//
// Optional; a nil Metrics in Config disables collection. The Prometheus
// implementation lives in pkg/metrics/prometheus.
type Metrics interface {
	// ObserveFetch records one object fetch-and-write task
	ObserveFetch(duration time.Duration, bytes int, err error)

	// ObserveSync records a completed CleanDownload
	ObserveSync(duration time.Duration, result Result, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(time.Duration, int, error)   {}
func (noopMetrics) ObserveSync(time.Duration, Result, error) {}
