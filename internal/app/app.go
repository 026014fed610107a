package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"snapkeep/internal/archive"
	"snapkeep/internal/config"
	"snapkeep/internal/database"
	"snapkeep/internal/encryption"
	"snapkeep/internal/fs"
	"snapkeep/internal/snap"
	"snapkeep/internal/vault"
)

// App is the application layer between the CLI and snap.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and records the operation on Close.
type App struct {
	cfg       *config.Config
	sourceDir string
	db        snap.Database
	vault     snap.Vault
	fsmgr     *fs.OSFilesystemManager
	encryptor snap.Encryptor
	store     *snap.SnapshotStore
	service   *snap.Service
	logger    *slog.Logger
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "Restore").
// verbose lowers the log level to debug. The caller must call Close when done.
func NewApp(cfg *config.Config, operation string, verbose bool) (*App, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return newApp(cfg, operation, level, snap.RealClock{}, snap.UUIDGenerator{})
}

func newApp(cfg *config.Config, operation string, level slog.Level, clock snap.Clock, ids snap.IDGenerator) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sourceDir, err := filepath.Abs(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving source dir: %w", err)
	}

	method, err := archive.ParseMethod(cfg.Scan.Compression)
	if err != nil {
		return nil, err
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("vault not usable: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	exclude, err := fs.LoadExclusions(sourceDir, cfg.Scan.Exclude)
	if err != nil {
		return nil, fmt.Errorf("loading exclusions: %w", err)
	}
	if p, ok := vaultExclusion(sourceDir, cfg.Vault); ok {
		exclude = append(exclude, p)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run `snapkeep db migrate`): %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, ids.New(), level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	fsmgr := fs.NewOSFilesystemManager()
	store := snap.NewSnapshotStore(v, enc, method, log)
	svc := snap.NewService(snap.Options{
		RepositoryName: cfg.RepositoryName,
		SourceDir:      sourceDir,
		Extensions:     cfg.Scan.Extensions,
		ExcludeDirs:    exclude,
	}, store, db, fsmgr, log, clock)

	return &App{
		cfg:       cfg,
		sourceDir: sourceDir,
		db:        db,
		vault:     v,
		fsmgr:     fsmgr,
		encryptor: enc,
		store:     store,
		service:   svc,
		logger:    logger,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

// vaultExclusion returns a scan exclusion for a filesystem vault rooted inside
// the source directory, so archives are never captured into later snapshots.
// The pattern is anchored to the source root and matches the vault path literally.
func vaultExclusion(sourceDir string, cfg config.VaultConfig) (string, bool) {
	if cfg.Type != "filesystem" || cfg.FSVaultRoot == "" {
		return "", false
	}
	root, err := filepath.Abs(cfg.FSVaultRoot)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(sourceDir, root)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return "./" + snap.EscapePattern(filepath.ToSlash(rel)), true
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for commands that write archives or files.
func (a *App) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.cfg.RepositoryName, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Location returns where the repository's archives are stored.
func (a *App) Location() string {
	return a.store.Location(a.cfg.RepositoryName)
}

// SourceDir returns the absolute source directory.
func (a *App) SourceDir() string {
	return a.sourceDir
}

// OnProgress forwards scan progress to fn.
func (a *App) OnProgress(fn snap.ProgressFunc) {
	a.service.OnProgress(fn)
}

// Scan snapshots the source directory into a new archive.
func (a *App) Scan() (*snap.ScanResult, error) {
	if err := a.persistOperation("source=" + a.sourceDir); err != nil {
		return nil, err
	}
	if _, err := a.fsmgr.ResolveDir(a.sourceDir); err != nil {
		return nil, a.op.Record("", fmt.Errorf("source dir: %w", err))
	}
	result, err := a.service.Scan()
	if err != nil {
		return nil, a.op.Record("", err)
	}
	return result, a.op.Record(result.ArchiveID, nil)
}

// ListRestorePoints returns the repository's restore points, newest first.
func (a *App) ListRestorePoints() []snap.RestorePoint {
	return a.service.ListRestorePoints()
}

// Restore applies the restore point at index to rawTarget, or to the source
// directory when rawTarget is empty.
func (a *App) Restore(index int, rawTarget string) (*snap.RestoreResult, error) {
	target := a.sourceDir
	if rawTarget != "" {
		abs, err := filepath.Abs(rawTarget)
		if err != nil {
			return nil, fmt.Errorf("resolving target: %w", err)
		}
		target = abs
	}
	if err := a.persistOperation(fmt.Sprintf("index=%d target=%s", index, target)); err != nil {
		return nil, err
	}
	result, err := a.service.Restore(index, target)
	if err != nil {
		return nil, a.op.Record("", err)
	}
	return result, a.op.Record(result.RestorePoint.ArchiveID, nil)
}

// Compare diffs the restore points at fromIndex and toIndex.
func (a *App) Compare(fromIndex, toIndex int) (*snap.DiffReport, error) {
	return a.service.Compare(fromIndex, toIndex)
}

// GetHistory returns the most recent operations, newest first.
func (a *App) GetHistory(limit int) ([]*snap.Operation, error) {
	return a.service.GetHistory(limit)
}

// Encrypted reports whether archives are written encrypted.
func (a *App) Encrypted() bool {
	return a.encryptor != nil
}

// SetupKeys generates the encryption key pair protected by passphrase.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled (set [encryption] type in the config)")
	}
	return a.encryptor.Setup(passphrase)
}

// Unlock makes encrypted archives readable for the rest of the session.
func (a *App) Unlock(passphrase string) error {
	if a.encryptor == nil {
		return nil
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	a.service.UseDecryption(dc)
	return nil
}

// Close finalizes the operation and closes all resources.
// Persisted operations are stamped with their final status and archive.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.op.ArchiveID); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// MigrateDatabase brings the history database named by cfg to the latest schema.
func MigrateDatabase(cfg config.DatabaseConfig) error {
	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	m, ok := db.(interface{ MigrateUp() error })
	if !ok {
		return fmt.Errorf("database type %q does not support migrations", cfg.Type)
	}
	if err := m.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
