package snap

import (
	"fmt"
	"sort"
	"strings"
)

// DetailedReport renders the human-readable diff stored next to the JSON diff
// in an archive: the three file lists followed by every per-file line diff.
func DetailedReport(repository string, date string, d *DiffReport) string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(&b, "Diff Report for %s - %s\n", repository, date)
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "New Files (%d):\n", len(d.NewFiles))
	for _, f := range d.NewFiles {
		fmt.Fprintf(&b, "  + %s\n", f)
	}
	fmt.Fprintf(&b, "\nModified Files (%d):\n", len(d.ModifiedFiles))
	for _, f := range d.ModifiedFiles {
		fmt.Fprintf(&b, "  * %s\n", f)
	}
	fmt.Fprintf(&b, "\nDeleted Files (%d):\n", len(d.DeletedFiles))
	for _, f := range d.DeletedFiles {
		fmt.Fprintf(&b, "  - %s\n", f)
	}

	b.WriteString("\n\nDetailed Changes:\n")
	b.WriteString(rule + "\n\n")

	paths := make([]string, 0, len(d.FileDiffs))
	for p := range d.FileDiffs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "File: %s\n", p)
		b.WriteString(strings.Repeat("-", 80) + "\n")
		b.WriteString(d.FileDiffs[p])
		b.WriteString("\n\n")
	}
	return b.String()
}
