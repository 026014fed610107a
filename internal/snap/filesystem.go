package snap

import "io/fs"

// FilesystemManager abstracts the filesystem calls made while scanning,
// restoring and taking safety backups, so tests can inject failures.
type FilesystemManager interface {
	// ReadDir lists a directory's entries sorted by name.
	ReadDir(path string) ([]fs.DirEntry, error)

	// ReadFile returns the whole content of a regular file.
	ReadFile(path string) ([]byte, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// WriteFile creates or truncates path and writes data to it.
	WriteFile(path string, data []byte) error

	// CopyFile copies a regular file from src to dst, overwriting dst.
	CopyFile(src, dst string) error
}
