package snap

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const metadataCacheSize = 256

// Catalog lists a repository's restore points from archive metadata alone,
// without touching tree documents. Metadata never changes once an archive is
// written, so reads are cached by archive identifier.
type Catalog struct {
	store  *SnapshotStore
	logger Logger
	cache  *lru.Cache[string, *ArchiveMetadata]
}

// NewCatalog creates a Catalog over store.
func NewCatalog(store *SnapshotStore, logger Logger) *Catalog {
	cache, err := lru.New[string, *ArchiveMetadata](metadataCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Catalog{store: store, logger: logger, cache: cache}
}

// List returns the repository's restore points, newest first. An unknown
// repository, a missing backup location or an empty one all yield an empty
// list and a logged reason. Archives with unreadable metadata are left out.
func (c *Catalog) List(repository string) []RestorePoint {
	if repository == "" {
		c.logger.Warn("no repository name configured")
		return nil
	}

	ids, err := c.store.ListArchives(repository)
	if err != nil {
		if errors.Is(err, ErrNoBackupLocation) {
			c.logger.Warn("backup location not found", "repository", repository, "location", c.store.Location(repository))
		} else {
			c.logger.Error("error listing archives", "repository", repository, "error", err)
		}
		return nil
	}
	if len(ids) == 0 {
		c.logger.Warn("no restore points found", "repository", repository)
		return nil
	}

	points := make([]RestorePoint, 0, len(ids))
	for _, id := range ids {
		meta, ok := c.metadata(id)
		if !ok {
			continue
		}
		points = append(points, RestorePoint{
			ArchiveID:      id,
			SnapshotID:     meta.SnapshotID,
			BackupDate:     meta.BackupDate,
			IsRestorePoint: meta.IsRestorePoint,
			ChangesSummary: meta.ChangesSummary,
		})
	}
	return points
}

// Select returns the restore point at index in List order.
func (c *Catalog) Select(repository string, index int) (RestorePoint, error) {
	points := c.List(repository)
	if len(points) == 0 {
		return RestorePoint{}, fmt.Errorf("%w: repository %q", ErrNoSnapshotsFound, repository)
	}
	if index < 0 || index >= len(points) {
		return RestorePoint{}, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidSelection, index, len(points))
	}
	return points[index], nil
}

// Find returns the listed restore point for archiveID.
func (c *Catalog) Find(repository, archiveID string) (RestorePoint, error) {
	for _, p := range c.List(repository) {
		if p.ArchiveID == archiveID {
			return p, nil
		}
	}
	return RestorePoint{}, fmt.Errorf("%w: no archive %q for repository %q", ErrInvalidSelection, archiveID, repository)
}

func (c *Catalog) metadata(archiveID string) (*ArchiveMetadata, bool) {
	if meta, ok := c.cache.Get(archiveID); ok {
		return meta, true
	}
	meta, ok := c.store.LoadMetadata(archiveID)
	if !ok {
		return nil, false
	}
	c.cache.Add(archiveID, meta)
	return meta, true
}
