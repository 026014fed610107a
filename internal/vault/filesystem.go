package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"snapkeep/internal/snap"
)

const archiveExt = ".zip"

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores one zip file per archive, grouped by repository:
//
//	<root>/
//	  <repository>/
//	    <repository>_<yyyyMMdd_HHmmss>.zip
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{root: root}, nil
}

// Root returns the vault's root directory.
func (v *FileSystemVault) Root() string {
	return v.root
}

// Location returns the directory holding the repository's archives.
func (v *FileSystemVault) Location(repository string) string {
	return filepath.Join(v.root, repository)
}

func (v *FileSystemVault) archivePath(repository, archiveID string) string {
	return filepath.Join(v.Location(repository), archiveID+archiveExt)
}

// PutArchive stores a new archive. Archives are immutable: an existing
// identifier is rejected.
func (v *FileSystemVault) PutArchive(repository, archiveID string, r io.Reader, size int64) error {
	dir := v.Location(repository)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	destPath := v.archivePath(repository, archiveID)
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("archive already exists: %s", archiveID)
	}

	return v.writeFile(destPath, r, size)
}

// GetArchive writes the archive's bytes to w.
func (v *FileSystemVault) GetArchive(repository, archiveID string, w io.Writer) error {
	f, err := os.Open(v.archivePath(repository, archiveID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", archiveID)
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return nil
}

// ListArchives returns the identifiers of the repository's archives.
// Files not named <repository>_*.zip are ignored.
func (v *FileSystemVault) ListArchives(repository string) ([]string, error) {
	entries, err := os.ReadDir(v.Location(repository))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", snap.ErrNoBackupLocation, v.Location(repository))
		}
		return nil, fmt.Errorf("reading repository directory: %w", err)
	}

	prefix := repository + "_"
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, archiveExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, archiveExt))
	}
	return ids, nil
}

// ValidateSetup verifies that the vault root is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements snap.Vault interface
var _ snap.Vault = (*FileSystemVault)(nil)
