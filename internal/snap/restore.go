package snap

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// RestoreEngine writes stored snapshot trees back to disk and compares snapshots.
type RestoreEngine struct {
	fsmgr   FilesystemManager
	store   *SnapshotStore
	catalog *Catalog
	exclude *ExcludeMatcher
	logger  Logger
	clock   Clock
}

// NewRestoreEngine creates a RestoreEngine. excludedDirs are the scan's
// exclusion patterns; the pre-restore safety backup skips the same directories.
func NewRestoreEngine(fsmgr FilesystemManager, store *SnapshotStore, catalog *Catalog, excludedDirs []string, logger Logger, clock Clock) *RestoreEngine {
	return &RestoreEngine{
		fsmgr:   fsmgr,
		store:   store,
		catalog: catalog,
		exclude: NewExcludeMatcher(excludedDirs),
		logger:  logger,
		clock:   clock,
	}
}

// Restore writes the tree of archiveID into targetPath.
//
// The archive must be one of the repository's listed restore points; nothing
// on disk is touched otherwise. Before writing, every file under targetPath is
// copied into targetPath/pre_restore_backup_<timestamp>. A failed safety backup
// is logged and the restore goes ahead. Directories the scan excludes, such as
// a vault kept inside the target, are not copied. Files are then created or overwritten
// from the tree; files on disk that the tree does not mention are left alone.
// A write failure aborts with a *RestoreError and earlier writes stay in place.
func (e *RestoreEngine) Restore(repository, targetPath, archiveID string) (*RestoreResult, error) {
	point, err := e.catalog.Find(repository, archiveID)
	if err != nil {
		return nil, err
	}

	root, err := e.store.LoadTree(archiveID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tree of %s: %v", ErrDataUnavailable, archiveID, err)
	}

	e.logger.Info("restore started", "archive", archiveID, "target", targetPath)

	result := &RestoreResult{RestorePoint: point, TargetPath: targetPath}

	backupPath, err := e.safetyBackup(targetPath)
	if err != nil {
		e.logger.Warn("pre-restore backup failed, continuing without it", "target", targetPath, "error", err)
	} else {
		result.SafetyBackupPath = backupPath
		e.logger.Info("pre-restore backup created", "path", backupPath)
	}

	if err := e.materialize(root, targetPath, result); err != nil {
		var rerr *RestoreError
		if !errors.As(err, &rerr) {
			rerr = &RestoreError{Path: targetPath, Err: err}
		}
		rerr.ArchiveID = archiveID
		rerr.SafetyBackupPath = result.SafetyBackupPath
		e.logger.Error("restore failed", "archive", archiveID, "path", rerr.Path, "error", rerr.Err)
		return nil, rerr
	}

	e.logger.Info("restore completed", "archive", archiveID, "files", result.FilesWritten, "dirs", result.DirsCreated)
	return result, nil
}

// safetyBackup copies the regular files under target into a fresh
// pre_restore_backup_<timestamp> directory inside it. Earlier safety backups
// and excluded directories are not copied.
func (e *RestoreEngine) safetyBackup(target string) (string, error) {
	info, err := e.fsmgr.Stat(target)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, target, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrIO, target)
	}

	backupPath := filepath.Join(target, SafetyBackupPrefix+SnapshotID(e.clock.Now()))
	if err := e.fsmgr.MkdirAll(backupPath); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrIO, backupPath, err)
	}
	if err := e.copyTree(target, backupPath, ""); err != nil {
		return "", err
	}
	return backupPath, nil
}

// copyTree copies src into dst. rel is src relative to the backup target,
// slash-separated, and is what exclusion patterns are matched against.
func (e *RestoreEngine) copyTree(src, dst, rel string) error {
	entries, err := e.fsmgr.ReadDir(src)
	if err != nil {
		return fmt.Errorf("%w: listing %s: %v", ErrIO, src, err)
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		switch {
		case entry.IsDir():
			childRel := path.Join(rel, entry.Name())
			if e.exclude.Match(childRel) {
				e.logger.Debug("excluded from pre-restore backup", "path", childRel)
				continue
			}
			if err := e.fsmgr.MkdirAll(to); err != nil {
				return fmt.Errorf("%w: creating %s: %v", ErrIO, to, err)
			}
			if err := e.copyTree(from, to, childRel); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if err := e.fsmgr.CopyFile(from, to); err != nil {
				return fmt.Errorf("%w: copying %s: %v", ErrIO, from, err)
			}
		}
	}
	return nil
}

// materialize writes node's children under dir. The root node stands for
// the target directory itself.
func (e *RestoreEngine) materialize(node *TreeNode, dir string, result *RestoreResult) error {
	if err := e.ensureDir(dir, result); err != nil {
		return &RestoreError{Path: dir, Err: err}
	}

	for _, child := range node.Children {
		if err := validName(child.Name); err != nil {
			return &RestoreError{Path: filepath.Join(dir, child.Name), Err: err}
		}
		childPath := filepath.Join(dir, child.Name)

		if child.IsDir() {
			if err := e.materialize(child, childPath, result); err != nil {
				return err
			}
			continue
		}

		if err := e.fsmgr.WriteFile(childPath, []byte(child.Content)); err != nil {
			return &RestoreError{Path: childPath, Err: err}
		}
		result.FilesWritten++
		e.logger.Debug("file restored", "path", childPath)
	}
	return nil
}

func (e *RestoreEngine) ensureDir(dir string, result *RestoreResult) error {
	info, err := e.fsmgr.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := e.fsmgr.MkdirAll(dir); err != nil {
		return err
	}
	result.DirsCreated++
	return nil
}

// validName rejects node names that would escape their parent directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid node name %q", name)
	}
	return nil
}

// Compare returns the diff between two archives of a repository.
// When to's stored diff was computed against from, it is returned as is;
// otherwise both trees are loaded and diffed.
func (e *RestoreEngine) Compare(repository, fromID, toID string) (*DiffReport, error) {
	if _, err := e.catalog.Find(repository, fromID); err != nil {
		return nil, err
	}
	if _, err := e.catalog.Find(repository, toID); err != nil {
		return nil, err
	}

	stored, err := e.store.LoadDiff(toID)
	if err != nil {
		e.logger.Warn("stored diff unreadable, recomputing", "archive", toID, "error", err)
	}
	if stored != nil && stored.PreviousSnapshotID != nil && *stored.PreviousSnapshotID == fromID {
		e.logger.Debug("using stored diff", "from", fromID, "to", toID)
		return stored, nil
	}

	fromTree, err := e.store.LoadTree(fromID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tree of %s: %v", ErrDataUnavailable, fromID, err)
	}
	toTree, err := e.store.LoadTree(toID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tree of %s: %v", ErrDataUnavailable, toID, err)
	}

	report := Diff(Flatten(fromTree), Flatten(toTree))
	report.PreviousSnapshotID = &fromID
	return report, nil
}
