// Package gc removes stale deploy artifacts from the temp directory.
//
// A deploy normally deletes its upload and backup files when it concludes.
// Some are left behind on purpose or by accident:
//   - the upload, when taking the backup failed
//   - the backup, when the tree could not be cleared or restored
//   - both, when the process died mid-deploy
//
// The collector deletes such files once they are older than a configured
// age, leaving the administrator a window for manual recovery. Backups a
// failed deploy retained on purpose are renamed out of the artifact
// namespace and never collected, and no sweep runs while the process is
// unhealthy.
package gc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/deploy"
	"github.com/marmos91/docmirror/pkg/health"
	"github.com/marmos91/docmirror/pkg/tree"
)

// Collector periodically sweeps stale deploy artifacts.
//
// A sweep holds the content tree lock so it never races a running deploy;
// a tick that finds the tree busy is skipped.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	tree   *tree.Tree
	config Config
	stopCh chan struct{}
	doneCh chan struct{}
	now    func() time.Time
}

// Config contains configuration for the collector.
type Config struct {
	// Dir is the deploy temp directory to sweep (required)
	Dir string

	// MaxAge is the age after which an artifact is deleted.
	// Zero disables collection.
	MaxAge time.Duration

	// Interval is how often to sweep (default: 1h)
	Interval time.Duration

	// DryRun logs what would be deleted without deleting
	DryRun bool

	// Health, when set, suspends sweeps while the process is unhealthy
	Health *health.State
}

// NewCollector creates a collector. Call Start to begin background sweeps.
func NewCollector(contentTree *tree.Tree, config Config) (*Collector, error) {
	if contentTree == nil {
		return nil, fmt.Errorf("content tree is required")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("temp directory is required")
	}

	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	return &Collector{
		tree:   contentTree,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}, nil
}

// Enabled reports whether a max age is configured.
func (c *Collector) Enabled() bool {
	return c.config.MaxAge > 0
}

// Start begins background collection. No-op when disabled.
func (c *Collector) Start() {
	if !c.Enabled() {
		logger.Info("Artifact collection disabled")
		return
	}

	logger.Info("Starting artifact collector: dir=%s max_age=%s interval=%s dry_run=%v",
		c.config.Dir, c.config.MaxAge, c.config.Interval, c.config.DryRun)

	go c.worker()
}

// Stop stops the collector and waits for an in-progress sweep, or for ctx
// to expire. Must be called at most once.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	close(c.stopCh)

	select {
	case <-c.doneCh:
		logger.Info("Artifact collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Artifact collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one sweep immediately, waiting for the tree lock.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	unlock, err := c.tree.Lock(ctx)
	if err != nil {
		return &Stats{StartTime: c.now()}, err
	}
	defer unlock()

	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			unlock, ok := c.tree.TryLock()
			if !ok {
				logger.Debug("GC: content tree busy, sweep skipped")
				continue
			}

			stats, err := c.collect(context.Background())
			unlock()

			if err != nil {
				logger.Error("Artifact collection failed: %v", err)
			} else if stats.StaleCount > 0 {
				logger.Info("Artifact collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect deletes artifacts older than MaxAge. The caller holds the tree lock.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	now := c.now()
	stats := &Stats{StartTime: now}
	defer func() { stats.EndTime = c.now() }()

	if c.config.Health != nil && !c.config.Health.Healthy() {
		logger.Warn("GC: process unhealthy, sweep skipped: %s", c.config.Health.Status().Reason)
		return stats, nil
	}

	entries, err := os.ReadDir(c.config.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := now.Add(-c.config.MaxAge)
	var stale []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !deploy.IsArtifact(entry.Name()) {
			continue
		}
		stats.ScannedCount++

		info, err := entry.Info()
		if err != nil {
			// Removed since ReadDir
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, entry.Name())
		}
	}
	stats.StaleCount = uint64(len(stale))

	if len(stale) == 0 {
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - Would delete %d artifacts:", len(stale))
		for _, name := range stale {
			logger.Info("  - %s", name)
		}
		return stats, nil
	}

	for _, name := range stale {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := os.Remove(filepath.Join(c.config.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("GC: failed to delete %s: %v", name, err)
			stats.FailedCount++
			continue
		}
		logger.Debug("GC: deleted %s", name)
		stats.DeletedCount++
	}

	return stats, nil
}

// Stats contains statistics from a sweep.
type Stats struct {
	StartTime    time.Time // When the sweep started
	EndTime      time.Time // When the sweep ended
	ScannedCount uint64    // Artifacts found in the temp directory
	StaleCount   uint64    // Artifacts older than MaxAge
	DeletedCount uint64    // Stale artifacts deleted
	FailedCount  uint64    // Stale artifacts that could not be deleted
}

// Duration returns the total sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	return fmt.Sprintf("scanned=%d stale=%d deleted=%d failed=%d duration=%s",
		s.ScannedCount, s.StaleCount, s.DeletedCount, s.FailedCount, s.Duration())
}
