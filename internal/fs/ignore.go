package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// IgnoreFileName is the per-source exclusion file. Its patterns are added to
// the configured scan exclusions.
const IgnoreFileName = ".snapignore"

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Blank lines and comments are returned as-is; the exclusion matcher skips them.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

// LoadExclusions returns configured plus the patterns of sourceDir's ignore file.
func LoadExclusions(sourceDir string, configured []string) ([]string, error) {
	patterns, err := ParseIgnoreFile(filepath.Join(sourceDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(configured)+len(patterns))
	out = append(out, configured...)
	out = append(out, patterns...)
	return out, nil
}
