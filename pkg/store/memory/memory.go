// Package memory implements an in-process ObjectStore.
//
// It backs unit tests of the mirror and deploy engine and can serve as a
// stand-in bucket for local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/docmirror/pkg/store"
)

// MemoryObjectStore keeps buckets as maps of key to body.
//
// Thread Safety:
// Safe for concurrent use. Bodies are copied on Put and Fetch so callers
// cannot mutate stored objects.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemoryObjectStore creates an empty store with no buckets.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		buckets: make(map[string]map[string][]byte),
	}
}

// CreateBucket creates an empty bucket. Creating an existing bucket is a no-op.
func (m *MemoryObjectStore) CreateBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
}

// Put stores body at key, creating the bucket if needed.
func (m *MemoryObjectStore) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string][]byte)
		m.buckets[bucket] = objects
	}
	objects[key] = append([]byte(nil), body...)
}

// Delete removes key from bucket if present.
func (m *MemoryObjectStore) Delete(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], key)
}

// List implements store.ObjectStore. Keys are returned sorted.
func (m *MemoryObjectStore) List(ctx context.Context, bucket string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucket, store.ErrBucketNotFound)
	}

	keys := make([]string, 0, len(objects))
	for key := range objects {
		if store.IsDirectoryMarker(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Fetch implements store.ObjectStore.
func (m *MemoryObjectStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucket, store.ErrBucketNotFound)
	}

	body, ok := objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, store.ErrObjectNotFound)
	}

	return append([]byte(nil), body...), nil
}
