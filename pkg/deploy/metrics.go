package deploy

import "time"

// Deploy outcomes reported to Metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeFailed        = "failed"
	OutcomeRolledBack    = "rolled_back"
	OutcomeUnrecoverable = "unrecoverable"
)

// Metrics provides observability for deploys. Optional.
type Metrics interface {
	// ObserveDeploy records a concluded deploy
	ObserveDeploy(format string, duration time.Duration, outcome string)

	// ObservePhase records the duration of one deploy phase
	// (persist, backup, clear, unpack, restore)
	ObservePhase(phase string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDeploy(string, time.Duration, string) {}
func (noopMetrics) ObservePhase(string, time.Duration)          {}
