package snap

import (
	"sort"
	"strings"
)

// Diff compares two flattened snapshots.
//
// A path only in current is new, only in previous is deleted, and in both with
// a different hash is modified. Content is never compared directly. Each list
// is sorted; FileDiffs holds a LineDiff for every modified path.
func Diff(previous, current FileMap) *DiffReport {
	report := &DiffReport{
		NewFiles:      []string{},
		ModifiedFiles: []string{},
		DeletedFiles:  []string{},
		FileDiffs:     map[string]string{},
	}

	for p, cur := range current {
		prev, ok := previous[p]
		if !ok {
			report.NewFiles = append(report.NewFiles, p)
			continue
		}
		if prev.Hash != cur.Hash {
			report.ModifiedFiles = append(report.ModifiedFiles, p)
			report.FileDiffs[p] = LineDiff(p, prev.Content, cur.Content)
		}
	}
	for p := range previous {
		if _, ok := current[p]; !ok {
			report.DeletedFiles = append(report.DeletedFiles, p)
		}
	}

	sort.Strings(report.NewFiles)
	sort.Strings(report.ModifiedFiles)
	sort.Strings(report.DeletedFiles)
	report.Summary = ChangesSummary{
		NewFiles:      len(report.NewFiles),
		ModifiedFiles: len(report.ModifiedFiles),
		DeletedFiles:  len(report.DeletedFiles),
	}
	return report
}

// LineDiff renders a positional line diff of one file.
//
// Lines are compared index by index: a line only in the new content is added,
// only in the old content is removed, and a differing pair is emitted as a
// removal followed by an addition. Equal lines emit nothing. This is not a
// minimal edit script; an insertion near the top shows every later line as changed.
func LineDiff(path, oldContent, newContent string) string {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	var b strings.Builder
	b.WriteString("--- previous/" + path + "\n")
	b.WriteString("+++ current/" + path + "\n")

	n := max(len(oldLines), len(newLines))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldLines):
			b.WriteString("+ " + newLines[i] + "\n")
		case i >= len(newLines):
			b.WriteString("- " + oldLines[i] + "\n")
		case oldLines[i] != newLines[i]:
			b.WriteString("- " + oldLines[i] + "\n")
			b.WriteString("+ " + newLines[i] + "\n")
		}
	}
	return b.String()
}

// DiffLine is one parsed line of a LineDiff body.
type DiffLine struct {
	Added bool
	Text  string
}

// ParseLineDiff extracts the added and removed lines from a LineDiff,
// skipping the two header lines.
func ParseLineDiff(diff string) []DiffLine {
	var lines []DiffLine
	for _, l := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ "):
			continue
		case strings.HasPrefix(l, "+ "):
			lines = append(lines, DiffLine{Added: true, Text: l[2:]})
		case strings.HasPrefix(l, "- "):
			lines = append(lines, DiffLine{Added: false, Text: l[2:]})
		}
	}
	return lines
}
