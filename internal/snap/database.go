package snap

// Database records the history of operations run against repositories.
// Snapshots themselves live in the vault; the database only indexes what was done.
type Database interface {
	// CreateOperation records the start of an operation and assigns it an ID.
	CreateOperation(operation, repository, parameters string) (*Operation, error)

	// FinishOperation stamps the finish time, final status and, for scans and
	// restores, the archive that was written or applied.
	FinishOperation(id int64, status string, archiveID string) error

	// ListOperations returns up to limit operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
