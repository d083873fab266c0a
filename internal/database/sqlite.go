package database

import (
	"database/sql"
	"errors"
	"fmt"

	"mirror-go/internal/database/migrations"
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock mirror.Clock
	path  string
}

// NewSQLiteDatabase opens the database at path and migrates it to the latest
// schema. path can be a file path or ":memory:". A nil clock uses real time.
func NewSQLiteDatabase(path string, clock mirror.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	s := NewSQLiteDatabaseFromDB(db, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock mirror.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = mirror.RealClock{}
	}
	return &SQLiteDatabase{
		db:    db,
		clock: clock,
	}
}

// OpenConnection opens a SQLite database and applies the connection PRAGMAs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Operations

const operationColumns = `id, operation, parameters, status, started_at, finished_at, files, bytes, error`

func scanOperation(row interface{ Scan(...any) error }) (*model.Operation, error) {
	var op model.Operation
	err := row.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &op.FinishedAt, &op.Files, &op.Bytes, &op.Error)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*model.Operation, error) {
	res, err := s.db.Exec(
		`INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)`,
		operation, parameters, model.StatusRunning, s.clock.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return s.GetOperation(id)
}

// GetOperation returns nil if there is no operation with id.
func (s *SQLiteDatabase) GetOperation(id int64) (*model.Operation, error) {
	op, err := scanOperation(s.db.QueryRow(`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting operation %d: %w", id, err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, result model.OperationResult) error {
	res, err := s.db.Exec(
		`UPDATE operations
		 SET status = ?, finished_at = ?, files = ?, bytes = ?, error = ?
		 WHERE id = ?`,
		result.Status, s.clock.Now().UTC(), result.Files, result.Bytes, result.Error, id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(
		`SELECT `+operationColumns+` FROM operations ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Archives

const archiveColumns = `checksum, operation_id, vault, size, created_at`

func scanArchive(row interface{ Scan(...any) error }) (*model.Archive, error) {
	var a model.Archive
	if err := row.Scan(&a.Checksum, &a.OperationID, &a.Vault, &a.Size, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDatabase) RecordArchive(archive *model.Archive) error {
	if archive.CreatedAt.IsZero() {
		archive.CreatedAt = s.clock.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO archives (`+archiveColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (checksum) DO UPDATE SET operation_id = excluded.operation_id, vault = excluded.vault`,
		archive.Checksum, archive.OperationID, archive.Vault, archive.Size, archive.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording archive: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindArchive(checksum string) (*model.Archive, error) {
	a, err := scanArchive(s.db.QueryRow(`SELECT `+archiveColumns+` FROM archives WHERE checksum = ?`, checksum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding archive: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListArchives(limit int) ([]*model.Archive, error) {
	rows, err := s.db.Query(
		`SELECT `+archiveColumns+` FROM archives ORDER BY operation_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var archives []*model.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning archive: %w", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	return archives, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ mirror.Database = (*SQLiteDatabase)(nil)

