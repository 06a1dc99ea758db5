package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStore indicates a remote listing or fetch failure (network, auth,
	// missing bucket, or missing key).
	//
	// Usage Pattern:
	//
	//	body, err := s.Fetch(ctx, bucket, key)
	//	if errors.Is(err, store.ErrStore) {
	//	    // remote side failed, local tree untouched by this key
	//	}
	ErrStore = errors.New("object store error")

	// ErrObjectNotFound indicates the requested key does not exist.
	// It wraps ErrStore.
	ErrObjectNotFound = fmt.Errorf("%w: object not found", ErrStore)

	// ErrBucketNotFound indicates the bucket does not exist. It wraps ErrStore.
	ErrBucketNotFound = fmt.Errorf("%w: bucket not found", ErrStore)
)

// IsDirectoryMarker reports whether key is a zero-length "folder" object as
// created by S3 consoles. Such keys have no file counterpart on disk.
func IsDirectoryMarker(key string) bool {
	return key == "" || key[len(key)-1] == '/'
}
