package testutil

import (
	"testing"

	"mirror-go/internal/database"
	"mirror-go/internal/mirror"
)

// NewTestDatabase creates a migrated in-memory database driven by clock.
// The database is closed when the test completes.
func NewTestDatabase(t *testing.T, clock mirror.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
