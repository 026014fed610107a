package app

import "snapkeep/internal/snap"

// Operation tracks a CLI operation that changes the backup location or the
// source tree. Operations are created in memory with ID=0. Only scan and
// restore persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	ArchiveID  string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     snap.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record marks the operation failed when err is non-nil, otherwise notes the
// archive it wrote or applied. It returns err unchanged.
func (op *Operation) Record(archiveID string, err error) error {
	if err != nil {
		op.Status = snap.StatusError
		return err
	}
	op.ArchiveID = archiveID
	return nil
}
