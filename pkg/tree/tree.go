// Package tree guards the served content directory.
//
// Every operation that mutates the directory (a full re-sync from the object
// store, an archive deploy, a rollback) must hold the tree lock for its whole
// body so readers and writers never observe two mutations interleaved.
package tree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by non-blocking operations when the tree is held.
var ErrBusy = errors.New("content tree busy")

// Tree is the on-disk directory served over HTTP plus its exclusive lock.
//
// The lock is a weighted semaphore of size 1 rather than a sync.Mutex so
// acquisition can be abandoned when the caller's context is cancelled.
type Tree struct {
	dir  string
	lock *semaphore.Weighted
}

// New returns a Tree rooted at dir. The directory is created if missing.
func New(dir string) (*Tree, error) {
	if dir == "" {
		return nil, fmt.Errorf("content directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve content directory %q: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create content directory %q: %w", abs, err)
	}

	return &Tree{
		dir:  abs,
		lock: semaphore.NewWeighted(1),
	}, nil
}

// Dir returns the absolute path of the content directory.
func (t *Tree) Dir() string {
	return t.dir
}

// Lock blocks until the tree is exclusively held or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (t *Tree) Lock(ctx context.Context) (func(), error) {
	if err := t.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { t.lock.Release(1) }, nil
}

// TryLock acquires the tree only if it is free. ok is false when another
// operation is in progress.
func (t *Tree) TryLock() (unlock func(), ok bool) {
	if !t.lock.TryAcquire(1) {
		return nil, false
	}
	return func() { t.lock.Release(1) }, true
}
