package snap

import (
	"fmt"
	"time"
)

// NodeKind distinguishes directory nodes from file nodes in a snapshot tree.
type NodeKind string

const (
	KindDirectory NodeKind = "directory"
	KindFile      NodeKind = "file"
)

// Timestamp layouts. SnapshotIDLayout is fixed-width and zero-padded so that
// archive identifiers sort lexicographically in time order.
const (
	SnapshotIDLayout = "20060102_150405"
	DisplayLayout    = "2006-01-02 15:04:05"
)

// TreeNode is a file or a directory in a snapshot tree.
// Directory nodes own their children; file nodes carry content and metadata.
type TreeNode struct {
	Name     string      `json:"name"`
	Kind     NodeKind    `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`

	// File attributes, unset on directories.
	Path         string `json:"path,omitempty"`
	Extension    string `json:"extension,omitempty"`
	Content      string `json:"content,omitempty"`
	Hash         string `json:"hash,omitempty"`
	Size         int64  `json:"size,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// IsDir returns true if this node is a directory.
func (n *TreeNode) IsDir() bool {
	return n.Kind == KindDirectory
}

// CountFiles returns the number of file nodes at or below n.
func (n *TreeNode) CountFiles() int {
	if !n.IsDir() {
		return 1
	}
	count := 0
	for _, c := range n.Children {
		count += c.CountFiles()
	}
	return count
}

// ScanMetadata describes the scan that produced a SnapshotDocument.
type ScanMetadata struct {
	Timestamp          string      `json:"timestamp"`
	Datetime           string      `json:"datetime"`
	TargetExtensions   []string    `json:"target_extensions"`
	ScanPath           string      `json:"scan_path"`
	BackupPath         string      `json:"backup_path"`
	IsRestorePoint     bool        `json:"is_restore_point"`
	PreviousSnapshotID *string     `json:"previous_backup"`
	DiffReport         *DiffReport `json:"diff_report,omitempty"`
}

// SnapshotDocument is the full record persisted for one scan.
type SnapshotDocument struct {
	RepositoryName string       `json:"repository_name"`
	Root           *TreeNode    `json:"root"`
	ScanMetadata   ScanMetadata `json:"scan_metadata"`
}

// ChangesSummary holds the counts of a DiffReport.
type ChangesSummary struct {
	NewFiles      int `json:"new_files"`
	ModifiedFiles int `json:"modified_files"`
	DeletedFiles  int `json:"deleted_files"`
}

// Total returns the number of changed paths.
func (c ChangesSummary) Total() int {
	return c.NewFiles + c.ModifiedFiles + c.DeletedFiles
}

// DiffReport is the set-based and per-file difference between two snapshots.
// NewFiles, ModifiedFiles and DeletedFiles are pairwise disjoint, and every key of
// FileDiffs is in ModifiedFiles.
type DiffReport struct {
	// PreviousSnapshotID is the archive the report was computed against, nil for
	// a first scan or a report computed outside of a scan.
	PreviousSnapshotID *string           `json:"previous_backup"`
	Summary            ChangesSummary    `json:"summary"`
	NewFiles           []string          `json:"new_files"`
	ModifiedFiles      []string          `json:"modified_files"`
	DeletedFiles       []string          `json:"deleted_files"`
	FileDiffs          map[string]string `json:"file_diffs"`
}

// IsEmpty returns true if the report records no changes.
func (d *DiffReport) IsEmpty() bool {
	return len(d.NewFiles) == 0 && len(d.ModifiedFiles) == 0 && len(d.DeletedFiles) == 0
}

// ArchiveMetadata is the sidecar record stored in every archive.
// It is small enough to be read on its own when listing restore points.
type ArchiveMetadata struct {
	RepositoryName     string         `json:"repository_name"`
	BackupDate         string         `json:"backup_date"`
	SnapshotID         string         `json:"timestamp"`
	SourcePath         string         `json:"source_path"`
	FileTypesIncluded  []string       `json:"file_types_included"`
	IsRestorePoint     bool           `json:"is_restore_point"`
	PreviousSnapshotID *string        `json:"previous_backup"`
	ChangesSummary     ChangesSummary `json:"changes_summary"`
	Encrypted          bool           `json:"encrypted,omitempty"`
}

// RestorePoint is a listing projection of one archive's metadata.
type RestorePoint struct {
	ArchiveID      string
	SnapshotID     string
	BackupDate     string
	IsRestorePoint bool
	ChangesSummary ChangesSummary
}

// DisplayName renders a one-line description for selection lists.
func (p RestorePoint) DisplayName() string {
	kind := "Initial backup"
	if p.IsRestorePoint {
		kind = "Restore point"
	}
	return fmt.Sprintf("%s: %s (%d new, %d modified, %d deleted)",
		kind, p.BackupDate,
		p.ChangesSummary.NewFiles, p.ChangesSummary.ModifiedFiles, p.ChangesSummary.DeletedFiles)
}

// ScanResult is returned by Service.Scan.
type ScanResult struct {
	ArchiveID  string
	SnapshotID string
	FileCount  int
	Diff       *DiffReport
	Previous   *string
}

// RestoreResult confirms which restore point was applied and where the
// pre-restore copy of the target was written.
type RestoreResult struct {
	RestorePoint     RestorePoint
	TargetPath       string
	SafetyBackupPath string
	FilesWritten     int
	DirsCreated      int
}

// Operation is a recorded CLI operation in the history database.
type Operation struct {
	ID         int64
	Operation  string
	Repository string
	Parameters string
	ArchiveID  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// Operation statuses stored in the history database.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)
