// Package journal persists a history of content operations (object store
// syncs and archive deploys) in BadgerDB.
//
// The journal is optional. When enabled, every operation writes one Record
// that is updated in place as the operation moves through its states, so an
// administrator can see after the fact which deploy rolled back and why.
package journal

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned by Get for an unknown record id.
var ErrRecordNotFound = errors.New("journal record not found")

// Kind identifies the operation a record describes.
type Kind string

const (
	// KindSync is a clear-and-download from the object store.
	KindSync Kind = "sync"
	// KindDeploy is an archive upload deploy.
	KindDeploy Kind = "deploy"
)

// Transition is one state change of an operation.
type Transition struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Record is the persisted history of one operation.
//
// ID and Started are fixed at creation and together form the storage key,
// so the same Record can be written repeatedly as it progresses.
type Record struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Format      string       `json:"format,omitempty"`
	State       string       `json:"state"`
	Error       string       `json:"error,omitempty"`
	Files       int          `json:"files,omitempty"`
	Bytes       int64        `json:"bytes,omitempty"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished,omitempty"`
	Transitions []Transition `json:"transitions"`
}

// NewRecord starts a record in the given initial state.
func NewRecord(id string, kind Kind, state string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          id,
		Kind:        kind,
		State:       state,
		Started:     now,
		Transitions: []Transition{{State: state, At: now}},
	}
}

// Transition moves the record to state, appending to its history.
func (r *Record) Transition(state string) {
	r.State = state
	r.Transitions = append(r.Transitions, Transition{State: state, At: time.Now().UTC()})
}

// Finish marks the record as concluded. A non-nil err is stored as text.
func (r *Record) Finish(state string, err error) {
	r.Transition(state)
	r.Finished = time.Now().UTC()
	if err != nil {
		r.Error = err.Error()
	}
}

// Done reports whether the record has concluded.
func (r *Record) Done() bool {
	return !r.Finished.IsZero()
}
