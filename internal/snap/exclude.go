package snap

import (
	"path"
	"strings"
)

// SafetyBackupPrefix names the directories RestoreEngine creates inside a target
// before overwriting it. They are never scanned and never copied again.
const SafetyBackupPrefix = "pre_restore_backup_"

// excludePattern is a parsed exclusion pattern with its matching strategy.
type excludePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// ExcludeMatcher decides which directories a scan skips.
// Patterns without '/' match against the directory name only.
// Patterns with '/' match against the slash-separated path relative to the scan root.
// A leading "./" anchors a single-segment pattern to the root as well.
type ExcludeMatcher struct {
	patterns []excludePattern
}

// NewExcludeMatcher creates an ExcludeMatcher from raw pattern strings.
// Blank entries and entries starting with '#' are skipped.
func NewExcludeMatcher(rawPatterns []string) *ExcludeMatcher {
	var patterns []excludePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSuffix(raw, "/")
		matchPath := strings.Contains(raw, "/")
		raw = strings.TrimPrefix(raw, "./")
		if raw == "" {
			continue
		}
		patterns = append(patterns, excludePattern{
			pattern:   raw,
			matchPath: matchPath,
		})
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Match reports whether the directory at relativePath (slash-separated, relative
// to the scan root) is excluded. Safety backup directories always are.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	name := path.Base(relativePath)
	if strings.HasPrefix(name, SafetyBackupPrefix) {
		return true
	}

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = path.Match(p.pattern, relativePath)
		} else {
			matched, err = path.Match(p.pattern, name)
		}
		if err != nil {
			// Bad pattern, skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// EscapePattern quotes the glob metacharacters in a literal path so that it
// matches only itself.
func EscapePattern(literal string) string {
	var b strings.Builder
	for _, r := range literal {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
