package model

import (
	"database/sql"
	"time"
)

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one recorded mirror operation (backup, restore, clear, ...).
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Files      int64
	Bytes      int64
	Error      string
}

// OperationResult is the outcome written when an operation finishes.
type OperationResult struct {
	Status string
	Files  int64
	Bytes  int64
	Error  string
}

// Archive is an encrypted tree archive uploaded to a vault.
type Archive struct {
	Checksum    string
	OperationID int64
	Vault       string
	Size        int64
	CreatedAt   time.Time
}

// Duration is how long a finished operation ran; zero while it is running.
func (o *Operation) Duration() time.Duration {
	if !o.FinishedAt.Valid {
		return 0
	}
	return o.FinishedAt.Time.Sub(o.StartedAt)
}
