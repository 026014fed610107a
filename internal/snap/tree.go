package snap

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ProgressFunc is told how many of the expected files a scan has processed.
// It is called synchronously from the walk and must not block for long.
type ProgressFunc func(processed, total int)

// TreeBuilder walks a directory and builds a snapshot tree of the files that
// match an extension allowlist.
type TreeBuilder struct {
	fsmgr    FilesystemManager
	logger   Logger
	progress ProgressFunc
}

// NewTreeBuilder creates a TreeBuilder reading through fsmgr.
func NewTreeBuilder(fsmgr FilesystemManager, logger Logger) *TreeBuilder {
	return &TreeBuilder{fsmgr: fsmgr, logger: logger}
}

// OnProgress registers a progress observer for subsequent builds.
func (b *TreeBuilder) OnProgress(fn ProgressFunc) {
	b.progress = fn
}

// buildState carries per-build counters through the recursion.
type buildState struct {
	root       string
	extensions []string
	exclude    *ExcludeMatcher
	total      int
	processed  int
}

// Build walks rootPath and returns a directory node named after it.
// At each level subdirectories come first, then files, each sorted by name,
// so two scans of unchanged content produce identical trees.
// Unreadable files and subdirectories are logged and skipped; only failing to
// list rootPath itself is an error.
func (b *TreeBuilder) Build(rootPath string, extensions []string, excludedDirs []string) (*TreeNode, error) {
	st := &buildState{
		root:       rootPath,
		extensions: extensions,
		exclude:    NewExcludeMatcher(excludedDirs),
	}

	if b.progress != nil {
		st.total = b.countFiles(st, rootPath, "")
	}

	root := &TreeNode{
		Name:     filepath.Base(rootPath),
		Kind:     KindDirectory,
		Children: []*TreeNode{},
	}
	if err := b.walk(st, rootPath, "", root); err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrIO, rootPath, err)
	}

	b.logger.Debug("tree built", "root", rootPath, "files", st.processed)
	return root, nil
}

// walk fills node with the contents of dir. rel is dir relative to the scan
// root, slash-separated, empty for the root itself.
func (b *TreeBuilder) walk(st *buildState, dir string, rel string, node *TreeNode) error {
	entries, err := b.fsmgr.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		childRel := path.Join(rel, e.Name())
		if st.exclude.Match(childRel) {
			b.logger.Debug("directory excluded", "path", childRel)
			continue
		}

		child := &TreeNode{Name: e.Name(), Kind: KindDirectory, Children: []*TreeNode{}}
		node.Children = append(node.Children, child)
		if err := b.walk(st, filepath.Join(dir, e.Name()), childRel, child); err != nil {
			b.logger.Warn("skipping unreadable directory", "path", childRel, "error", err)
		}
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !hasExtension(e.Name(), st.extensions) {
			continue
		}
		file, err := b.readFile(filepath.Join(dir, e.Name()), path.Join(rel, e.Name()))
		if err != nil {
			b.logger.Error("error processing file", "path", path.Join(rel, e.Name()), "error", err)
			continue
		}
		node.Children = append(node.Children, file)

		st.processed++
		if b.progress != nil {
			b.progress(st.processed, st.total)
		}
	}

	return nil
}

// readFile builds the file node for one included file.
func (b *TreeBuilder) readFile(absPath, rel string) (*TreeNode, error) {
	info, err := b.fsmgr.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", ErrIO, err)
	}
	data, err := b.fsmgr.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrIO, err)
	}

	content := string(data)
	return &TreeNode{
		Name:         info.Name(),
		Kind:         KindFile,
		Path:         rel,
		Extension:    filepath.Ext(rel),
		Content:      content,
		Hash:         HashContent(content),
		Size:         info.Size(),
		LastModified: info.ModTime().Format(DisplayLayout),
	}, nil
}

// countFiles is the cheap pre-pass that sizes the progress total.
// Errors just make the total an underestimate.
func (b *TreeBuilder) countFiles(st *buildState, dir string, rel string) int {
	entries, err := b.fsmgr.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		switch {
		case e.IsDir():
			childRel := path.Join(rel, e.Name())
			if !st.exclude.Match(childRel) {
				count += b.countFiles(st, filepath.Join(dir, e.Name()), childRel)
			}
		case e.Type().IsRegular() && hasExtension(e.Name(), st.extensions):
			count++
		}
	}
	return count
}

// hasExtension reports whether name ends with one of extensions (case-sensitive).
func hasExtension(name string, extensions []string) bool {
	for _, ext := range extensions {
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FileEntry is the part of a file node that diffing needs.
type FileEntry struct {
	Hash    string
	Content string
}

// FileMap is a flattened tree: slash-separated relative path to file entry.
type FileMap map[string]FileEntry

// Flatten walks root depth-first and keys every file by the names of the
// directories above it joined with '/'. The root's own name is not included.
func Flatten(root *TreeNode) FileMap {
	files := make(FileMap)
	if root == nil {
		return files
	}
	flattenInto(root, "", files)
	return files
}

func flattenInto(node *TreeNode, current string, files FileMap) {
	if !node.IsDir() {
		files[current] = FileEntry{Hash: node.Hash, Content: node.Content}
		return
	}
	for _, child := range node.Children {
		childPath := child.Name
		if current != "" {
			childPath = current + "/" + child.Name
		}
		flattenInto(child, childPath, files)
	}
}
