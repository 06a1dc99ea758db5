// Package deploy replaces the served content tree with the contents of an
// uploaded archive, backing up the current tree first and restoring it if
// the new archive cannot be unpacked.
//
// State machine:
//
//	Idle -> Persisted -> BackedUp -> Cleared -> Unpacked          (success)
//	                                 Cleared -> RollingBack -> RolledBack (failure)
//
// A failure while persisting, backing up or clearing aborts without a
// rollback. A failure while restoring the backup is unrecoverable.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/archive"
	"github.com/marmos91/docmirror/pkg/health"
	"github.com/marmos91/docmirror/pkg/journal"
	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/marmos91/docmirror/pkg/tree"
)

// Deploy states, as logged and journaled.
const (
	StateIdle          = "idle"
	StatePersisted     = "persisted"
	StateBackedUp      = "backed_up"
	StateCleared       = "cleared"
	StateUnpacked      = "unpacked"
	StateRollingBack   = "rolling_back"
	StateRolledBack    = "rolled_back"
	StateFailed        = "failed"
	StateUnrecoverable = "unrecoverable"
)

// Journal receives operation records. *journal.Journal satisfies it.
type Journal interface {
	Put(rec *journal.Record) error
}

// Config configures a Coordinator.
type Config struct {
	// Tree is the guarded content directory (required)
	Tree *tree.Tree

	// TempDir holds uploaded archives and backup snapshots while a deploy
	// runs (required, created if missing)
	TempDir string

	// Health is flipped to unhealthy on an unrecoverable rollback (required)
	Health *health.State

	// CompressionLevel is the gzip level for backups.
	// Default: archive.FastCompression
	CompressionLevel int

	// Metrics is optional
	Metrics Metrics

	// Journal is optional
	Journal Journal
}

// Coordinator runs deploys against the content tree.
//
// Thread Safety:
// Deploy holds the tree lock for its whole body, so concurrent deploys (and
// concurrent object store syncs) are serialized.
type Coordinator struct {
	tree    *tree.Tree
	tempDir string
	health  *health.State
	level   int
	metrics Metrics
	journal Journal

	// Codec and filesystem primitives, replaceable in tests.
	pack   func(ctx context.Context, sourceDir, output string, level int) error
	unpack func(ctx context.Context, source, targetDir string, format archive.Format) (int, error)
	clear  func(dir string) error
}

// New validates cfg and returns a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Tree == nil {
		return nil, fmt.Errorf("content tree is required")
	}
	if cfg.TempDir == "" {
		return nil, fmt.Errorf("temp directory is required")
	}
	if cfg.Health == nil {
		return nil, fmt.Errorf("health state is required")
	}

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp directory %q: %w", cfg.TempDir, err)
	}

	level := cfg.CompressionLevel
	if level == 0 {
		level = archive.FastCompression
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Coordinator{
		tree:    cfg.Tree,
		tempDir: cfg.TempDir,
		health:  cfg.Health,
		level:   level,
		metrics: metrics,
		journal: cfg.Journal,
		pack:    archive.Pack,
		unpack:  archive.Unpack,
		clear:   mirror.Clear,
	}, nil
}

// Temp file name prefixes. Uploads are named temp_<ext>-<id>.<ext> and
// backups backup-<id>.tar.gz. A backup retained for manual recovery is
// renamed kept-backup-<id>.tar.gz.
const (
	UploadPrefix = "temp_"
	BackupPrefix = "backup-"
	KeptPrefix   = "kept-"
)

// IsArtifact reports whether a temp directory entry name is an upload or
// backup file written by Deploy. Kept backups are not artifacts.
func IsArtifact(name string) bool {
	return strings.HasPrefix(name, UploadPrefix) || strings.HasPrefix(name, BackupPrefix)
}

// run carries the per-deploy state through the phases.
type run struct {
	id         string
	format     archive.Format
	uploadPath string
	backupPath string
	record     *journal.Record
}

// Deploy replaces the content tree with the archive read from body.
//
// Returns nil when the new content is live. Otherwise the error wraps one of:
//   - ErrRolledBack: the archive was bad, the previous tree is restored
//   - ErrClearGap: the tree could not be emptied; it may be partially cleared
//   - ErrUnrecoverable: the restore failed; health is now unhealthy
//
// or, for failures before the tree is touched, the underlying I/O or archive
// error.
func (c *Coordinator) Deploy(ctx context.Context, body io.Reader, format archive.Format) error {
	if !format.Valid() {
		return fmt.Errorf("%w: %s", archive.ErrUnsupportedFormat, format)
	}

	unlock, err := c.tree.Lock(ctx)
	if err != nil {
		return fmt.Errorf("acquire content tree: %w", err)
	}
	defer unlock()

	id := uuid.NewString()
	ext := format.Extension()
	r := &run{
		id:         id,
		format:     format,
		uploadPath: filepath.Join(c.tempDir, fmt.Sprintf("%s%s-%s.%s", UploadPrefix, ext, id, ext)),
		backupPath: filepath.Join(c.tempDir, fmt.Sprintf("%s%s.tar.gz", BackupPrefix, id)),
		record:     journal.NewRecord(id, journal.KindDeploy, StateIdle),
	}
	r.record.Format = format.String()
	c.record(r)

	start := time.Now()
	outcome := OutcomeFailed
	defer func() {
		c.metrics.ObserveDeploy(format.String(), time.Since(start), outcome)
	}()

	logger.Info("Deploy %s: starting (%s upload)", id, format)

	// Persisted
	if err := c.phase("persist", func() error { return c.persist(body, r.uploadPath) }); err != nil {
		_ = os.Remove(r.uploadPath)
		return c.fail(r, StateFailed, fmt.Errorf("persist upload: %w", err))
	}
	c.transition(r, StatePersisted)

	// BackedUp
	if err := c.phase("backup", func() error { return c.pack(ctx, c.tree.Dir(), r.backupPath, c.level) }); err != nil {
		logger.Warn("Deploy %s: upload %s left in place after backup failure", id, r.uploadPath)
		return c.fail(r, StateFailed, fmt.Errorf("backup content tree: %w", err))
	}
	c.transition(r, StateBackedUp)

	// Cleared
	if err := c.phase("clear", func() error { return c.clear(c.tree.Dir()) }); err != nil {
		_ = os.Remove(r.uploadPath)
		logger.Error("Deploy %s: content tree may be partially cleared, backup kept at %s", id, c.keepBackup(r))
		return c.fail(r, StateFailed, fmt.Errorf("%w: %w", ErrClearGap, err))
	}
	c.transition(r, StateCleared)

	// Unpacked
	var count int
	unpackErr := c.phase("unpack", func() error {
		var err error
		count, err = c.unpack(ctx, r.uploadPath, c.tree.Dir(), format)
		return err
	})
	if unpackErr == nil {
		r.record.Files = count
		c.cleanup(r)
		c.finish(r, StateUnpacked, nil)
		outcome = OutcomeSuccess
		logger.Info("Deploy %s: %d files live in %v", id, count, time.Since(start).Round(time.Millisecond))
		return nil
	}

	logger.Warn("Deploy %s: unpack failed, rolling back: %v", id, unpackErr)
	c.transition(r, StateRollingBack)

	if err := c.phase("restore", func() error { return c.restore(r) }); err != nil {
		_ = os.Remove(r.uploadPath)
		kept := c.keepBackup(r)
		reason := fmt.Sprintf("deploy %s: restore of %s failed: %v", id, kept, err)
		c.health.MarkUnhealthy(reason)
		logger.Error("Deploy %s: UNRECOVERABLE, content tree in unknown state; backup kept at %s: %v", id, kept, err)
		outcome = OutcomeUnrecoverable
		return c.fail(r, StateUnrecoverable, fmt.Errorf("%w: unpack: %w; restore: %w", ErrUnrecoverable, unpackErr, err))
	}

	c.cleanup(r)
	outcome = OutcomeRolledBack
	logger.Info("Deploy %s: previous content restored", id)
	return c.fail(r, StateRolledBack, fmt.Errorf("%w: %w", ErrRolledBack, unpackErr))
}

// persist copies the upload body to path.
func (c *Coordinator) persist(body io.Reader, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	logger.Debug("> Persisted %d bytes to %s", n, path)
	return nil
}

// restore empties the tree again and unpacks the backup into it.
func (c *Coordinator) restore(r *run) error {
	if err := c.clear(c.tree.Dir()); err != nil {
		return err
	}
	// The restore must run to completion even if the request went away.
	_, err := c.unpack(context.Background(), r.backupPath, c.tree.Dir(), archive.FormatTarGz)
	return err
}

// keepBackup renames the backup out of the artifact namespace so the
// collector leaves it for the operator. Returns the path it now lives at.
func (c *Coordinator) keepBackup(r *run) string {
	kept := filepath.Join(c.tempDir, KeptPrefix+filepath.Base(r.backupPath))
	if err := os.Rename(r.backupPath, kept); err != nil {
		logger.Warn("Deploy %s: failed to mark backup %s as kept: %v", r.id, r.backupPath, err)
		return r.backupPath
	}
	return kept
}

// cleanup removes the upload and backup files of a concluded deploy.
func (c *Coordinator) cleanup(r *run) {
	for _, path := range []string{r.uploadPath, r.backupPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Deploy %s: failed to remove %s: %v", r.id, path, err)
		}
	}
}

func (c *Coordinator) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.ObservePhase(name, time.Since(start))
	return err
}

func (c *Coordinator) transition(r *run, state string) {
	logger.Debug("Deploy %s: -> %s", r.id, state)
	r.record.Transition(state)
	c.record(r)
}

func (c *Coordinator) finish(r *run, state string, err error) {
	r.record.Finish(state, err)
	c.record(r)
}

func (c *Coordinator) fail(r *run, state string, err error) error {
	logger.Error("Deploy %s: %s: %v", r.id, state, err)
	c.finish(r, state, err)
	return err
}

func (c *Coordinator) record(r *run) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Put(r.record); err != nil {
		logger.Warn("Failed to journal deploy %s: %v", r.id, err)
	}
}
