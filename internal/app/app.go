package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mirror-go/internal/archive"
	"mirror-go/internal/config"
	"mirror-go/internal/database"
	"mirror-go/internal/encryption"
	"mirror-go/internal/fs"
	"mirror-go/internal/host"
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/vault"
)

// ErrVaultAhead means another device pushed a newer archive than this
// device's history knows about.
var ErrVaultAhead = errors.New("vault is ahead of local history")

// MirrorApp is the application layer between the CLI and MirrorService.
// It constructs all dependencies from config, records each command as an
// operation in the history database, and manages the DB lifecycle on Close.
type MirrorApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	fsmgr     mirror.FilesystemManager
	encryptor mirror.Encryptor
	service   *mirror.MirrorService
	clock     mirror.Clock
	op        *Operation
	logger    mirror.Logger
	logFile   *os.File

	vault    mirror.Vault // created on first archive command
	archiver *archive.Archiver
}

// NewMirrorApp creates a fully wired MirrorApp from the given config.
// operation identifies the CLI command being run (e.g. "backup", "restore").
// The caller must call Close when done.
func NewMirrorApp(cfg *config.Config, operation string) (*MirrorApp, error) {
	return newMirrorApp(cfg, operation, mirror.RealClock{}, mirror.UUIDGenerator{}, fs.NewOSFilesystemManager())
}

func newMirrorApp(cfg *config.Config, operation string, clock mirror.Clock, ids mirror.IDGenerator, fsmgr mirror.FilesystemManager) (*MirrorApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ignore, err := fs.LoadIgnoreMatcher(cfg.DataDir, cfg.Filesystem.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	session, err := host.NewSessionFromConfig(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("creating session checker: %w", err)
	}

	svcCfg := mirror.ServiceConfig{
		DataDir:           cfg.DataDir,
		BackupDir:         cfg.BackupDir,
		PreferencesDir:    cfg.Preferences.Dir,
		PreferencesSuffix: cfg.Preferences.Suffix,
	}
	if svcCfg.PreferencesDir == "" {
		svcCfg.PreferencesDir = filepath.Join(cfg.DataDir, "shared_prefs")
	}
	reloader, err := host.NewReloaderFromConfig(cfg.Preferences, fsmgr, svcCfg.PreferencesDir)
	if err != nil {
		return nil, fmt.Errorf("creating preference reloader: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.AppID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// The run ID ties together every log line of one invocation.
	logger, logFile, err := newLogger(cfg.LogDir, ids.New())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger.With(slog.String("app", cfg.AppID))}

	svc := mirror.NewMirrorService(svcCfg, fsmgr, ignore, session, reloader, log, clock)

	a := &MirrorApp{
		cfg:       cfg,
		db:        db,
		fsmgr:     fsmgr,
		encryptor: enc,
		service:   svc,
		clock:     clock,
		op:        NewOperation(operation, ""),
		logger:    log,
		logFile:   logFile,
	}
	svc.OnScheduledBackup(a.recordScheduledBackup)
	return a, nil
}

// Config returns the configuration the app was built from.
func (a *MirrorApp) Config() *config.Config {
	return a.cfg
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for commands that change a tree or the vault.
func (a *MirrorApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Backup mirrors the data directory into the backup directory.
func (a *MirrorApp) Backup() (mirror.CopyStats, error) {
	if err := a.persistOperation(a.cfg.DataDir); err != nil {
		return mirror.CopyStats{}, err
	}
	stats, err := a.service.Backup()
	a.op.Record(stats, err)
	return stats, err
}

// Restore mirrors the backup directory back into the data directory and
// reloads preferences.
func (a *MirrorApp) Restore() (mirror.CopyStats, error) {
	if err := a.persistOperation(a.cfg.BackupDir); err != nil {
		return mirror.CopyStats{}, err
	}
	stats, err := a.service.Restore()
	a.op.Record(stats, err)
	return stats, err
}

// ClearBackup deletes the backup directory.
func (a *MirrorApp) ClearBackup() error {
	if err := a.persistOperation(a.cfg.BackupDir); err != nil {
		return err
	}
	err := a.service.ClearBackup()
	a.op.Fail(err)
	return err
}

// ReloadPreferences marks every preference store dirty.
func (a *MirrorApp) ReloadPreferences() ([]string, error) {
	return a.service.ReloadPreferences()
}

// Status fingerprints the data and backup directories.
func (a *MirrorApp) Status() (*mirror.BackupStatus, error) {
	return a.service.Status()
}

// History returns the most recent operations.
func (a *MirrorApp) History(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// recordScheduledBackup stores each backup run by the scheduler as its own
// finished operation.
func (a *MirrorApp) recordScheduledBackup(stats mirror.CopyStats, err error) {
	op := NewOperation("scheduled-backup", a.cfg.DataDir)
	dbOp, createErr := a.db.CreateOperation(op.Operation, op.Parameters)
	if createErr != nil {
		a.logger.Error("recording scheduled backup failed", "error", createErr)
		return
	}
	op.Record(stats, err)
	if finishErr := a.db.FinishOperation(dbOp.ID, op.Result); finishErr != nil {
		a.logger.Error("recording scheduled backup failed", "error", finishErr)
	}
}

// InitKeys generates the archive encryption key pair.
func (a *MirrorApp) InitKeys(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	return nil
}

// Close finalizes the operation and closes all resources.
// A scheduled backup still pending is dropped; a running one is waited for.
func (a *MirrorApp) Close() error {
	a.service.Close()

	var errs []error
	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Result); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// openVault creates the configured vault and its archiver once.
func (a *MirrorApp) openVault(ctx context.Context, name string) (*archive.Archiver, error) {
	if a.archiver != nil {
		return a.archiver, nil
	}
	vcfg, err := a.cfg.Vault(name)
	if err != nil {
		return nil, err
	}
	v, err := vault.NewVaultFromConfig(ctx, vcfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	a.vault = v
	a.archiver = archive.NewArchiver(
		archive.Config{AppID: a.cfg.AppID, Root: a.cfg.BackupDir},
		a.service.Mirror(), a.fsmgr, v, a.encryptor, a.clock, a.logger,
	)
	return a.archiver, nil
}
