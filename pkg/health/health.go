// Package health tracks whether the process is fit to keep serving.
//
// The only transition is healthy -> unhealthy, taken when the content tree
// ends up in an unknown state (a failed rollback). An operator has to
// restore the tree by hand and restart the process.
package health

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the health state.
type Status struct {
	Healthy bool      `json:"healthy"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since"`
}

// State is the process health flag.
//
// Thread Safety:
// Safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	status Status
}

// New returns a healthy State.
func New() *State {
	return &State{status: Status{Healthy: true, Since: time.Now().UTC()}}
}

// MarkUnhealthy records reason and flips the state. The first reason wins.
func (s *State) MarkUnhealthy(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Healthy {
		return
	}
	s.status = Status{Healthy: false, Reason: reason, Since: time.Now().UTC()}
}

// Healthy reports whether the process is healthy.
func (s *State) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Healthy
}

// Status returns a copy of the current status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
