package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"snapkeep/internal/snap"
)

// MockFile represents a file or directory in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are cleaned with filepath.Clean; parents of added entries are created
// implicitly. Individual paths can be made to fail on write or read.
type MockFilesystemManager struct {
	mu         sync.Mutex
	files      map[string]*MockFile
	failWrite  map[string]error
	failRead   map[string]error
	failMkdir  map[string]error
	writeCount int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:     make(map[string]*MockFile),
		failWrite: make(map[string]error),
		failRead:  make(map[string]error),
		failMkdir: make(map[string]error),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFile(filepath.Clean(path), content)
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(path))
}

// RemoveFile deletes a file or an empty directory from the mock filesystem.
func (m *MockFilesystemManager) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// FailWrite makes WriteFile and CopyFile to path return err.
func (m *MockFilesystemManager) FailWrite(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite[filepath.Clean(path)] = err
}

// FailRead makes ReadFile and ReadDir of path return err.
func (m *MockFilesystemManager) FailRead(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead[filepath.Clean(path)] = err
}

// FailMkdir makes MkdirAll of path return err.
func (m *MockFilesystemManager) FailMkdir(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMkdir[filepath.Clean(path)] = err
}

// Content returns the content of the file at path.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok || f.IsDirectory {
		return nil, false
	}
	return f.Content, true
}

// Exists reports whether path is a file or directory.
func (m *MockFilesystemManager) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// Writes returns how many files WriteFile and CopyFile have written.
func (m *MockFilesystemManager) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCount
}

func (m *MockFilesystemManager) ReadDir(path string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.failRead[path]; ok {
		return nil, err
	}
	dir, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}
	if !dir.IsDirectory {
		return nil, fmt.Errorf("not a directory: %s", path)
	}

	var entries []fs.DirEntry
	for p, f := range m.files {
		if p == path || filepath.Dir(p) != path {
			continue
		}
		entries = append(entries, fs.FileInfoToDirEntry(m.info(p, f)))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.failRead[path]; ok {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if f.IsDirectory {
		return nil, fmt.Errorf("cannot read directory: %s", path)
	}
	return append([]byte(nil), f.Content...), nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return m.info(path, f), nil
}

func (m *MockFilesystemManager) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.failMkdir[path]; ok {
		return err
	}
	for p := path; ; p = filepath.Dir(p) {
		if f, ok := m.files[p]; ok && !f.IsDirectory {
			return fmt.Errorf("not a directory: %s", p)
		}
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	m.mkdirAll(path)
	return nil
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.failWrite[path]; ok {
		return err
	}
	parent, ok := m.files[filepath.Dir(path)]
	if !ok || !parent.IsDirectory {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if f, ok := m.files[path]; ok && f.IsDirectory {
		return fmt.Errorf("is a directory: %s", path)
	}
	m.addFile(path, append([]byte(nil), data...))
	m.writeCount++
	return nil
}

func (m *MockFilesystemManager) CopyFile(src, dst string) error {
	data, err := m.ReadFile(src)
	if err != nil {
		return err
	}
	return m.WriteFile(dst, data)
}

func (m *MockFilesystemManager) addFile(path string, content []byte) {
	m.mkdirAll(filepath.Dir(path))
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func (m *MockFilesystemManager) mkdirAll(path string) {
	for p := path; ; p = filepath.Dir(p) {
		if _, ok := m.files[p]; !ok {
			m.files[p] = &MockFile{Permissions: fs.ModeDir | 0755, IsDirectory: true}
		}
		if parent := filepath.Dir(p); parent == p || strings.HasSuffix(p, string(filepath.Separator)) {
			break
		}
	}
}

func (m *MockFilesystemManager) info(path string, f *MockFile) *mockFileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    f.Permissions,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ snap.FilesystemManager = (*MockFilesystemManager)(nil)
