package snap

import "io"

// Vault is the storage backend holding archive containers.
// Archives are grouped per repository and addressed by archive identifier
// ({repository}_{snapshotID}). Payloads are streamed through io.Reader/io.Writer.
type Vault interface {
	// PutArchive stores a new archive. size is the number of bytes read from r.
	// Storing an identifier that already exists is an error; archives are immutable.
	PutArchive(repository, archiveID string, r io.Reader, size int64) error

	// GetArchive writes the archive's bytes to w.
	GetArchive(repository, archiveID string, w io.Writer) error

	// ListArchives returns the archive identifiers stored for repository, in no
	// particular order. It returns an error wrapping ErrNoBackupLocation when the
	// vault holds nothing at all for the repository.
	ListArchives(repository string) ([]string, error)

	// Location describes where a repository's archives live, for display and
	// for the backup_path field of scan metadata.
	Location(repository string) string

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
