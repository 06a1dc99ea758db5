// Package refresh periodically re-mirrors the content tree from the object
// store so edits made directly in the bucket reach readers without an
// administrator calling the update endpoint.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/marmos91/docmirror/pkg/tree"
)

// Downloader performs a non-blocking clean download.
// *mirror.Synchronizer satisfies it.
type Downloader interface {
	TryCleanDownload(ctx context.Context) (mirror.Result, error)
}

// Config contains configuration for the refresher.
type Config struct {
	// Interval between refreshes. Zero disables the refresher.
	Interval time.Duration

	// Timeout bounds a single refresh (default: 10m)
	Timeout time.Duration
}

// Refresher runs a clean download on a fixed interval.
//
// A tick that finds the tree busy (a deploy or manual update in progress)
// is skipped rather than queued.
//
// Thread Safety: Safe for concurrent use.
type Refresher struct {
	downloader Downloader
	config     Config
	stopCh     chan struct{}
	doneCh     chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
	started    atomic.Bool
}

// New creates a refresher. Call Start to begin.
func New(downloader Downloader, config Config) *Refresher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}

	return &Refresher{
		downloader: downloader,
		config:     config,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the background worker. Safe to call multiple times.
func (r *Refresher) Start() {
	if r.config.Interval <= 0 {
		logger.Info("Scheduled refresh disabled")
		return
	}

	r.startOnce.Do(func() {
		r.started.Store(true)
		logger.Info("Starting scheduled refresh: interval=%s", r.config.Interval)
		go r.worker()
	})
}

// Stop signals the worker and waits for an in-progress refresh to finish,
// or for ctx to expire.
func (r *Refresher) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}

	r.stopOnce.Do(func() { close(r.stopCh) })

	select {
	case <-r.doneCh:
		logger.Info("Scheduled refresh stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Scheduled refresh shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one refresh immediately.
func (r *Refresher) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	result, err := r.downloader.TryCleanDownload(ctx)
	switch {
	case errors.Is(err, tree.ErrBusy):
		logger.Info("Scheduled refresh skipped: content tree busy")
		return err
	case err != nil:
		logger.Error("Scheduled refresh failed: %v", err)
		return err
	}

	logger.Debug("Scheduled refresh completed: %d/%d files", result.Written, result.Keys)
	return nil
}

func (r *Refresher) worker() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = r.RunNow(context.Background())
		case <-r.stopCh:
			return
		}
	}
}
