package snap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSelection means a restore point index or archive identifier
	// does not resolve to a listed archive.
	ErrInvalidSelection = errors.New("invalid restore point selection")

	// ErrNoSnapshotsFound means the catalog for a repository is empty.
	ErrNoSnapshotsFound = errors.New("no snapshots found")

	// ErrCorruptArchive means a required archive entry is missing or unparseable.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrDataUnavailable means a tree or diff could not be loaded when required.
	ErrDataUnavailable = errors.New("snapshot data unavailable")

	// ErrRestoreFailed means tree materialization aborted part way.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrIO is a filesystem-level failure during scan or copy.
	ErrIO = errors.New("i/o error")

	// ErrNoBackupLocation means the vault holds nothing for a repository.
	ErrNoBackupLocation = errors.New("no backup location for repository")
)

// RestoreError is returned when writing a snapshot tree to disk fails.
// Files written before the failure are not rolled back; SafetyBackupPath points
// at the copy of the target taken before the restore started, and is empty if
// that copy could not be made.
type RestoreError struct {
	ArchiveID        string
	Path             string
	SafetyBackupPath string
	Err              error
}

func (e *RestoreError) Error() string {
	msg := fmt.Sprintf("restoring %s: writing %s: %v", e.ArchiveID, e.Path, e.Err)
	if e.SafetyBackupPath != "" {
		msg += fmt.Sprintf(" (pre-restore backup at %s)", e.SafetyBackupPath)
	}
	return msg
}

// Unwrap exposes both ErrRestoreFailed and the underlying cause to errors.Is.
func (e *RestoreError) Unwrap() []error {
	return []error{ErrRestoreFailed, e.Err}
}
