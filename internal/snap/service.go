package snap

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Options configures a Service for one repository. Everything the engine
// needs is passed in here; nothing is defaulted from the environment.
type Options struct {
	RepositoryName string
	SourceDir      string
	Extensions     []string
	ExcludeDirs    []string
}

// Service is the orchestration layer that ties tree building, diffing,
// archive storage and restore together for the CLI.
type Service struct {
	opts     Options
	database Database
	store    *SnapshotStore
	catalog  *Catalog
	builder  *TreeBuilder
	engine   *RestoreEngine
	logger   Logger
	clock    Clock
}

// NewService creates a Service for the repository described by opts.
func NewService(opts Options, store *SnapshotStore, database Database, fsmgr FilesystemManager, logger Logger, clock Clock) *Service {
	catalog := NewCatalog(store, logger)
	return &Service{
		opts:     opts,
		database: database,
		store:    store,
		catalog:  catalog,
		builder:  NewTreeBuilder(fsmgr, logger),
		engine:   NewRestoreEngine(fsmgr, store, catalog, opts.ExcludeDirs, logger, clock),
		logger:   logger,
		clock:    clock,
	}
}

// OnProgress registers a callback for scan progress.
func (s *Service) OnProgress(fn ProgressFunc) {
	s.builder.OnProgress(fn)
}

// UseDecryption makes encrypted archives readable for restore and compare.
func (s *Service) UseDecryption(dc DecryptionContext) {
	s.store.UseDecryption(dc)
}

// Scan snapshots the source directory and persists it with a diff against
// the repository's latest archive.
//
// When the previous tree is encrypted and no key is unlocked, the diff is
// computed from the previous archive's plaintext file index and carries no
// line diffs. A previous archive that is corrupt is logged and treated as
// empty, so every file shows up as new. In both cases the diff records no
// PreviousSnapshotID, so Compare recomputes it from the trees later.
func (s *Service) Scan() (*ScanResult, error) {
	if s.opts.RepositoryName == "" {
		return nil, fmt.Errorf("no repository name configured")
	}

	now := s.clock.Now()
	snapshotID := SnapshotID(now)
	s.logger.Info("scan started", "repository", s.opts.RepositoryName, "source", s.opts.SourceDir, "snapshot", snapshotID)

	previous, found, err := s.store.FindLatest(s.opts.RepositoryName)
	if err != nil {
		return nil, fmt.Errorf("finding previous snapshot: %w", err)
	}

	root, err := s.builder.Build(s.opts.SourceDir, s.opts.Extensions, s.opts.ExcludeDirs)
	if err != nil {
		return nil, fmt.Errorf("building tree: %w", err)
	}
	root.Name = filepath.Base(filepath.Clean(s.opts.SourceDir))

	prevFiles := FileMap{}
	complete := false
	var prevID *string
	if found {
		prevID = &previous
		prevFiles, complete, err = s.previousFiles(previous)
		if err != nil {
			return nil, fmt.Errorf("reading previous snapshot %s: %w", previous, err)
		}
	}

	diff := Diff(prevFiles, Flatten(root))
	if complete {
		diff.PreviousSnapshotID = prevID
	} else {
		diff.FileDiffs = map[string]string{}
	}

	doc := &SnapshotDocument{
		RepositoryName: s.opts.RepositoryName,
		Root:           root,
		ScanMetadata: ScanMetadata{
			Timestamp:          snapshotID,
			Datetime:           now.Format(DisplayLayout),
			TargetExtensions:   s.opts.Extensions,
			ScanPath:           s.opts.SourceDir,
			BackupPath:         s.store.Location(s.opts.RepositoryName),
			IsRestorePoint:     found,
			PreviousSnapshotID: prevID,
			DiffReport:         diff,
		},
	}

	archiveID, err := s.store.Persist(doc, diff)
	if err != nil {
		return nil, fmt.Errorf("persisting snapshot: %w", err)
	}

	if found {
		s.logger.Info("restore point created", "archive", archiveID, "previous", previous,
			"new", diff.Summary.NewFiles, "modified", diff.Summary.ModifiedFiles, "deleted", diff.Summary.DeletedFiles)
	} else {
		s.logger.Info("initial backup created", "archive", archiveID, "files", root.CountFiles())
	}

	return &ScanResult{
		ArchiveID:  archiveID,
		SnapshotID: snapshotID,
		FileCount:  root.CountFiles(),
		Diff:       diff,
		Previous:   prevID,
	}, nil
}

// previousFiles flattens the previous archive for diffing. complete is false
// when only hashes were available or the archive had to be treated as empty.
// It fails when the archive is encrypted, locked and has no file index.
func (s *Service) previousFiles(archiveID string) (files FileMap, complete bool, err error) {
	tree, err := s.store.LoadTree(archiveID)
	if err == nil {
		return Flatten(tree), true, nil
	}
	if !errors.Is(err, ErrDataUnavailable) {
		s.logger.Warn("previous snapshot unreadable, diffing against empty", "archive", archiveID, "error", err)
		return FileMap{}, false, nil
	}

	index, ierr := s.store.LoadIndex(archiveID)
	if ierr != nil {
		return nil, false, fmt.Errorf("%w (no file index: %v)", err, ierr)
	}
	s.logger.Info("previous snapshot locked, diffing against its file index", "archive", archiveID)
	return index, false, nil
}

// ListRestorePoints returns the repository's restore points, newest first.
func (s *Service) ListRestorePoints() []RestorePoint {
	return s.catalog.List(s.opts.RepositoryName)
}

// Restore applies the restore point at index (in ListRestorePoints order) to
// targetPath, or to the source directory when targetPath is empty.
func (s *Service) Restore(index int, targetPath string) (*RestoreResult, error) {
	point, err := s.catalog.Select(s.opts.RepositoryName, index)
	if err != nil {
		return nil, err
	}
	if targetPath == "" {
		targetPath = s.opts.SourceDir
	}
	return s.engine.Restore(s.opts.RepositoryName, targetPath, point.ArchiveID)
}

// Compare diffs the restore points at fromIndex and toIndex.
func (s *Service) Compare(fromIndex, toIndex int) (*DiffReport, error) {
	from, err := s.catalog.Select(s.opts.RepositoryName, fromIndex)
	if err != nil {
		return nil, err
	}
	to, err := s.catalog.Select(s.opts.RepositoryName, toIndex)
	if err != nil {
		return nil, err
	}
	return s.engine.Compare(s.opts.RepositoryName, from.ArchiveID, to.ArchiveID)
}

// GetHistory returns the most recent operations, newest first.
func (s *Service) GetHistory(limit int) ([]*Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
