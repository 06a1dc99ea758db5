package mirror

import "errors"

// ErrFs indicates a local filesystem failure (create, write, remove) or an
// object key that would resolve outside the target directory.
//
// Usage Pattern:
//
//	if err := mirror.Clear(dir); errors.Is(err, mirror.ErrFs) {
//	    // the directory may be partially emptied
//	}
var ErrFs = errors.New("filesystem error")
