package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"snapkeep/internal/snap"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all archives in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	archives map[string]map[string][]byte // repository -> archiveID -> bytes
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		archives: make(map[string]map[string][]byte),
	}
}

// Location returns a descriptive name for the repository's archives.
func (m *MemoryVault) Location(repository string) string {
	return "memory://" + m.name + "/" + repository
}

// PutArchive stores a new archive.
func (m *MemoryVault) PutArchive(repository, archiveID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.archives[repository]
	if !ok {
		repo = make(map[string][]byte)
		m.archives[repository] = repo
	}
	if _, exists := repo[archiveID]; exists {
		return fmt.Errorf("archive already exists: %s", archiveID)
	}
	repo[archiveID] = data
	return nil
}

// GetArchive writes the archive's bytes to w.
func (m *MemoryVault) GetArchive(repository, archiveID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[repository][archiveID]
	if !ok {
		return fmt.Errorf("archive not found: %s", archiveID)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

// ListArchives returns the identifiers stored for repository.
func (m *MemoryVault) ListArchives(repository string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.archives[repository]
	if !ok {
		return nil, fmt.Errorf("%w: %s", snap.ErrNoBackupLocation, m.Location(repository))
	}
	ids := make([]string, 0, len(repo))
	for id := range repo {
		ids = append(ids, id)
	}
	return ids, nil
}

// Corrupt replaces an archive's bytes in place. It exists so tests can
// simulate damaged archives; archives are otherwise immutable.
func (m *MemoryVault) Corrupt(repository, archiveID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.archives[repository]; ok {
		repo[archiveID] = data
	}
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements snap.Vault interface
var _ snap.Vault = (*MemoryVault)(nil)
