// Package store defines the read-only object store contract the mirror needs:
// list the keys of a bucket and fetch object bodies.
//
// Implementations:
//   - pkg/store/s3: Amazon S3 and S3-compatible endpoints (MinIO, Localstack, Cubbit DS3)
//   - pkg/store/memory: in-process buckets for tests and local development
package store

import "context"

// ObjectStore lists and fetches objects from a remote bucket.
//
// Implementations must not retry internally beyond what their transport is
// configured to do: callers treat any returned error as terminal for the key.
//
// Thread Safety:
// Implementations must be safe for concurrent use; the mirror fetches many
// keys in parallel.
type ObjectStore interface {
	// List returns every object key in bucket.
	//
	// An empty bucket yields an empty slice and a nil error. Directory
	// placeholder keys (ending in "/") are omitted.
	List(ctx context.Context, bucket string) ([]string, error)

	// Fetch returns the full body of the object at key.
	//
	// Returns an error wrapping ErrObjectNotFound if the key does not exist,
	// and ErrStore for every other failure.
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}
