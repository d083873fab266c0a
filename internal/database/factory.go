package database

import (
	"fmt"
	"os"
	"path/filepath"

	"mirror-go/internal/config"
	"mirror-go/internal/mirror"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// The sqlite database file is named after the application id.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, appID string, clock mirror.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, appID+".db"), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
