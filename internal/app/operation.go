package app

import (
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

// Operation tracks a CLI command that may change a tree or the vault.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Result     model.OperationResult
}

// NewOperation creates a new in-memory operation that succeeds unless told otherwise.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Result:     model.OperationResult{Status: model.StatusSuccess},
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record stores the outcome of a copy.
func (op *Operation) Record(stats mirror.CopyStats, err error) {
	op.Result.Files = int64(stats.Files)
	op.Result.Bytes = stats.Bytes
	op.Fail(err)
}

// Fail marks the operation failed with err. A nil err changes nothing.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Result.Status = model.StatusError
	op.Result.Error = err.Error()
}
