package snap

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func entry(content string) FileEntry {
	return FileEntry{Hash: HashContent(content), Content: content}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name         string
		previous     FileMap
		current      FileMap
		wantNew      []string
		wantModified []string
		wantDeleted  []string
	}{
		{
			name:         "both empty",
			previous:     FileMap{},
			current:      FileMap{},
			wantNew:      []string{},
			wantModified: []string{},
			wantDeleted:  []string{},
		},
		{
			name:         "first scan puts everything in new",
			previous:     nil,
			current:      FileMap{"b.cs": entry("y"), "a.cs": entry("x")},
			wantNew:      []string{"a.cs", "b.cs"},
			wantModified: []string{},
			wantDeleted:  []string{},
		},
		{
			name:         "unchanged",
			previous:     FileMap{"a.cs": entry("x")},
			current:      FileMap{"a.cs": entry("x")},
			wantNew:      []string{},
			wantModified: []string{},
			wantDeleted:  []string{},
		},
		{
			name:         "new modified and deleted",
			previous:     FileMap{"a.cs": entry("x"), "b.cs": entry("y")},
			current:      FileMap{"a.cs": entry("z"), "c.cs": entry("w")},
			wantNew:      []string{"c.cs"},
			wantModified: []string{"a.cs"},
			wantDeleted:  []string{"b.cs"},
		},
		{
			name:         "hash decides, not content",
			previous:     FileMap{"a.cs": {Hash: "h1", Content: "same"}},
			current:      FileMap{"a.cs": {Hash: "h1", Content: "different"}},
			wantNew:      []string{},
			wantModified: []string{},
			wantDeleted:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.previous, tt.current)

			if !reflect.DeepEqual(got.NewFiles, tt.wantNew) {
				t.Errorf("NewFiles = %v, want %v", got.NewFiles, tt.wantNew)
			}
			if !reflect.DeepEqual(got.ModifiedFiles, tt.wantModified) {
				t.Errorf("ModifiedFiles = %v, want %v", got.ModifiedFiles, tt.wantModified)
			}
			if !reflect.DeepEqual(got.DeletedFiles, tt.wantDeleted) {
				t.Errorf("DeletedFiles = %v, want %v", got.DeletedFiles, tt.wantDeleted)
			}
			want := ChangesSummary{len(tt.wantNew), len(tt.wantModified), len(tt.wantDeleted)}
			if got.Summary != want {
				t.Errorf("Summary = %+v, want %+v", got.Summary, want)
			}
			if len(got.FileDiffs) != len(tt.wantModified) {
				t.Errorf("FileDiffs has %d entries, want %d", len(got.FileDiffs), len(tt.wantModified))
			}
			for _, p := range tt.wantModified {
				if _, ok := got.FileDiffs[p]; !ok {
					t.Errorf("FileDiffs missing %s", p)
				}
			}
		})
	}
}

// TestDiff_Partition checks, over generated file sets, that new, modified and
// deleted are exactly the set differences and changed intersection, and that
// together with the unchanged paths they partition the union.
func TestDiff_Partition(t *testing.T) {
	for seed := 0; seed < 50; seed++ {
		previous, current := FileMap{}, FileMap{}
		for i := 0; i < 12; i++ {
			p := fmt.Sprintf("dir%d/file%d.cs", i%3, i)
			switch (seed + i*7) % 5 {
			case 0:
				previous[p] = entry("old")
			case 1:
				current[p] = entry("new")
			case 2:
				previous[p] = entry("same")
				current[p] = entry("same")
			case 3:
				previous[p] = entry("before")
				current[p] = entry("after")
			}
		}

		got := Diff(previous, current)

		var wantNew, wantDeleted, wantModified, unchanged []string
		for p := range current {
			if _, ok := previous[p]; !ok {
				wantNew = append(wantNew, p)
			}
		}
		for p, prev := range previous {
			cur, ok := current[p]
			switch {
			case !ok:
				wantDeleted = append(wantDeleted, p)
			case cur.Hash != prev.Hash:
				wantModified = append(wantModified, p)
			default:
				unchanged = append(unchanged, p)
			}
		}

		assertSameSet(t, seed, "NewFiles", got.NewFiles, wantNew)
		assertSameSet(t, seed, "DeletedFiles", got.DeletedFiles, wantDeleted)
		assertSameSet(t, seed, "ModifiedFiles", got.ModifiedFiles, wantModified)

		seen := map[string]int{}
		for _, list := range [][]string{got.NewFiles, got.ModifiedFiles, got.DeletedFiles, unchanged} {
			for _, p := range list {
				seen[p]++
			}
		}
		union := map[string]bool{}
		for p := range previous {
			union[p] = true
		}
		for p := range current {
			union[p] = true
		}
		if len(seen) != len(union) {
			t.Errorf("seed %d: partition covers %d paths, union has %d", seed, len(seen), len(union))
		}
		for p, n := range seen {
			if n != 1 {
				t.Errorf("seed %d: %s appears in %d sets", seed, p, n)
			}
		}
	}
}

func assertSameSet(t *testing.T, seed int, field string, got, want []string) {
	t.Helper()
	if !sort.StringsAreSorted(got) {
		t.Errorf("seed %d: %s not sorted: %v", seed, field, got)
	}
	w := append([]string(nil), want...)
	sort.Strings(w)
	if len(got) == 0 && len(w) == 0 {
		return
	}
	if !reflect.DeepEqual(got, w) {
		t.Errorf("seed %d: %s = %v, want %v", seed, field, got, w)
	}
}

func TestLineDiff(t *testing.T) {
	t.Run("single line change", func(t *testing.T) {
		got := LineDiff("a.cs", "x", "z")
		want := "--- previous/a.cs\n+++ current/a.cs\n- x\n+ z\n"
		if got != want {
			t.Errorf("LineDiff() = %q, want %q", got, want)
		}

		lines := ParseLineDiff(got)
		wantLines := []DiffLine{{Added: false, Text: "x"}, {Added: true, Text: "z"}}
		if !reflect.DeepEqual(lines, wantLines) {
			t.Errorf("ParseLineDiff() = %+v, want %+v", lines, wantLines)
		}
	})

	t.Run("appended lines", func(t *testing.T) {
		got := LineDiff("a.cs", "one\ntwo", "one\ntwo\nthree")
		if !strings.HasSuffix(got, "+++ current/a.cs\n+ three\n") {
			t.Errorf("LineDiff() = %q, want only the added line", got)
		}
	})

	t.Run("removed lines", func(t *testing.T) {
		got := LineDiff("a.cs", "one\ntwo\nthree", "one")
		want := "--- previous/a.cs\n+++ current/a.cs\n- two\n- three\n"
		if got != want {
			t.Errorf("LineDiff() = %q, want %q", got, want)
		}
	})

	t.Run("insertion shifts later lines", func(t *testing.T) {
		lines := ParseLineDiff(LineDiff("a.cs", "b\nc", "a\nb\nc"))
		// positional: b->a, c->b, +c
		if len(lines) != 5 {
			t.Errorf("ParseLineDiff() returned %d lines, want 5: %+v", len(lines), lines)
		}
	})

	t.Run("identical content", func(t *testing.T) {
		if lines := ParseLineDiff(LineDiff("a.cs", "same\n", "same\n")); len(lines) != 0 {
			t.Errorf("ParseLineDiff() = %+v, want none", lines)
		}
	})
}
