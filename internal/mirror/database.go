package mirror

import "mirror-go/internal/model"

// Database records the history of mirror operations.
type Database interface {
	// CreateOperation inserts a running operation and returns it with its ID set.
	CreateOperation(operation, parameters string) (*model.Operation, error)

	// FinishOperation marks an operation finished with the given outcome.
	FinishOperation(id int64, result model.OperationResult) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// MaxOperationID returns the highest operation ID, or 0 if there are none.
	MaxOperationID() (int64, error)

	// Archive tracking

	// RecordArchive remembers an archive pushed to a vault by an operation.
	RecordArchive(archive *model.Archive) error
	// FindArchive returns nil if no archive has the checksum.
	FindArchive(checksum string) (*model.Archive, error)
	ListArchives(limit int) ([]*model.Archive, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	Close() error
}
