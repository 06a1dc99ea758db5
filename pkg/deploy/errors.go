package deploy

import "errors"

var (
	// ErrRolledBack indicates the uploaded archive could not be unpacked and
	// the previous content was restored from the backup. The tree is in its
	// prior good state; the returned error also wraps the unpack failure.
	ErrRolledBack = errors.New("deploy rolled back")

	// ErrClearGap indicates the tree could not be emptied before unpacking.
	// No restore is attempted: the tree may be partially cleared. The backup
	// snapshot is kept in the temp directory for manual recovery.
	ErrClearGap = errors.New("content tree partially cleared")

	// ErrUnrecoverable indicates the unpack failed and restoring the backup
	// failed too. The tree is in an unknown state, health is marked
	// unhealthy and the backup snapshot is kept for manual recovery.
	ErrUnrecoverable = errors.New("content tree unrecoverable")
)
