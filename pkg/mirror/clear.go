package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Clear removes every entry below dir, leaving dir itself present and empty.
//
// A missing dir is not an error. Clear is not atomic: on failure some
// entries may already be gone. Errors wrap ErrFs.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrFs, dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("%w: remove %s: %v", ErrFs, path, err)
		}
	}

	return nil
}

// keyPath maps an object key onto a path below dir. Keys that would climb
// out of dir are rejected.
func keyPath(dir, key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: object key %q escapes %s", ErrFs, key, dir)
	}
	return filepath.Join(dir, rel), nil
}
