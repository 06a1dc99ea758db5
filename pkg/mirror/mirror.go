// Package mirror keeps a local directory identical to the contents of an
// object store bucket.
//
// The synchronization model is deliberately simple: empty the directory,
// list the bucket, then fetch every object concurrently through a bounded
// pool. There is no diffing; each refresh is a full re-download.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/journal"
	"github.com/marmos91/docmirror/pkg/store"
	"github.com/marmos91/docmirror/pkg/tree"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency is the number of fetches in flight when unset.
	DefaultConcurrency = 16

	// DefaultFetchTimeout bounds a single object fetch when unset.
	DefaultFetchTimeout = 30 * time.Second
)

// Sync states recorded in the journal.
const (
	StateClearing    = "clearing"
	StateDownloading = "downloading"
	StateCompleted   = "completed"
	StateFailed      = "failed"
)

// Journal receives operation records. *journal.Journal satisfies it.
type Journal interface {
	Put(rec *journal.Record) error
}

// Result summarizes one Sync.
type Result struct {
	// Keys is the number of keys listed in the bucket
	Keys int
	// Written is the number of files written to disk
	Written int
	// Bytes is the total size of the written files
	Bytes int64
	// Failed is the number of keys that could not be fetched or written
	Failed int
}

// Config configures a Synchronizer.
type Config struct {
	// Store is the remote object store (required)
	Store store.ObjectStore

	// Tree is the guarded content directory CleanDownload operates on (required)
	Tree *tree.Tree

	// Bucket is the bucket CleanDownload mirrors (required)
	Bucket string

	// Concurrency bounds in-flight fetches. Default: 16
	Concurrency int

	// FetchTimeout bounds each object fetch. Default: 30s
	FetchTimeout time.Duration

	// Metrics is optional
	Metrics Metrics

	// Journal is optional
	Journal Journal
}

// Synchronizer clears and repopulates the content tree from the object store.
//
// Thread Safety:
// Sync on distinct directories may run concurrently. CleanDownload takes
// the tree lock and is therefore serialized with every other tree mutation.
type Synchronizer struct {
	store        store.ObjectStore
	tree         *tree.Tree
	bucket       string
	concurrency  int
	fetchTimeout time.Duration
	metrics      Metrics
	journal      Journal
}

// New validates cfg and returns a Synchronizer.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Tree == nil {
		return nil, fmt.Errorf("content tree is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Synchronizer{
		store:        cfg.Store,
		tree:         cfg.Tree,
		bucket:       cfg.Bucket,
		concurrency:  concurrency,
		fetchTimeout: fetchTimeout,
		metrics:      metrics,
		journal:      cfg.Journal,
	}, nil
}

// Sync lists bucket and writes every object to dir/key, creating parent
// directories as needed.
//
// Every fetch runs to completion even after another has failed; the first
// error observed is returned. Files written successfully stay on disk, so a
// failed Sync leaves a partial mirror. Sync does not clear dir first.
func (s *Synchronizer) Sync(ctx context.Context, bucket, dir string) (Result, error) {
	keys, err := s.store.List(ctx, bucket)
	if err != nil {
		return Result{}, fmt.Errorf("list bucket %q: %w", bucket, err)
	}

	logger.Info("Downloading %d objects from bucket %s", len(keys), bucket)

	var (
		mu     sync.Mutex
		result = Result{Keys: len(keys)}
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, key := range keys {
		g.Go(func() error {
			n, err := s.fetchOne(ctx, bucket, dir, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logger.Warn("Failed to download %s: %v", key, err)
				return err
			}
			result.Written++
			result.Bytes += int64(n)
			return nil
		})
	}

	err = g.Wait()
	return result, err
}

// fetchOne downloads key and writes it below dir.
func (s *Synchronizer) fetchOne(ctx context.Context, bucket, dir, key string) (n int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveFetch(time.Since(start), n, err)
	}()

	path, err := keyPath(dir, key)
	if err != nil {
		return 0, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	body, err := s.store.Fetch(fetchCtx, bucket, key)
	if err != nil {
		// A fetch that outlives its own timeout is a store failure; one cut
		// short by the caller is not.
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, store.ErrStore) {
			return 0, fmt.Errorf("%w: fetch %s: %w", store.ErrStore, key, err)
		}
		return 0, fmt.Errorf("fetch %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("%w: create parent of %s: %v", ErrFs, key, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", ErrFs, key, err)
	}

	logger.Debug("> Downloaded %s (%d bytes)", key, len(body))
	return len(body), nil
}

// CleanDownload empties the content tree and re-downloads the configured
// bucket into it, holding the tree lock throughout.
//
// A Clear failure aborts before any fetch is attempted.
func (s *Synchronizer) CleanDownload(ctx context.Context) (Result, error) {
	unlock, err := s.tree.Lock(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire content tree: %w", err)
	}
	defer unlock()

	return s.cleanDownload(ctx)
}

// TryCleanDownload is CleanDownload without waiting: it returns
// tree.ErrBusy if another operation holds the tree.
func (s *Synchronizer) TryCleanDownload(ctx context.Context) (Result, error) {
	unlock, ok := s.tree.TryLock()
	if !ok {
		return Result{}, tree.ErrBusy
	}
	defer unlock()

	return s.cleanDownload(ctx)
}

// cleanDownload runs with the tree lock held.
func (s *Synchronizer) cleanDownload(ctx context.Context) (result Result, err error) {
	start := time.Now()
	rec := journal.NewRecord(uuid.NewString(), journal.KindSync, StateClearing)
	s.record(rec)

	defer func() {
		s.metrics.ObserveSync(time.Since(start), result, err)

		rec.Files = result.Written
		rec.Bytes = result.Bytes
		if err != nil {
			rec.Finish(StateFailed, err)
			logger.Error("Clean download of bucket %s failed: %v", s.bucket, err)
		} else {
			rec.Finish(StateCompleted, nil)
			logger.Info("Clean download of bucket %s completed: %d files, %d bytes in %v",
				s.bucket, result.Written, result.Bytes, time.Since(start).Round(time.Millisecond))
		}
		s.record(rec)
	}()

	dir := s.tree.Dir()
	logger.Info("Clearing %s", dir)
	if err = Clear(dir); err != nil {
		return Result{}, err
	}

	rec.Transition(StateDownloading)
	s.record(rec)

	return s.Sync(ctx, s.bucket, dir)
}

// Tree returns the guarded content tree.
func (s *Synchronizer) Tree() *tree.Tree {
	return s.tree
}

func (s *Synchronizer) record(rec *journal.Record) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Put(rec); err != nil {
		logger.Warn("Failed to journal sync %s: %v", rec.ID, err)
	}
}
