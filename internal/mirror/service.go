package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultScheduleDelay is how long ScheduleBackup waits when the caller
	// has no opinion.
	DefaultScheduleDelay = 5 * time.Second

	// DefaultPreferencesSuffix is the file extension of preference stores.
	DefaultPreferencesSuffix = ".xml"

	preferencesSubdir = "shared_prefs"
)

// ServiceConfig holds the locations a MirrorService works on.
type ServiceConfig struct {
	DataDir           string // the application's private data directory
	BackupDir         string // where the mirror of DataDir is kept
	PreferencesDir    string // defaults to DataDir/shared_prefs
	PreferencesSuffix string // defaults to DefaultPreferencesSuffix
}

// MirrorService backs an application's data directory up to a backup
// directory, restores it, and runs debounced background backups.
//
// Tree failures are logged at error level and also returned; the service
// itself never stops half way because of them.
type MirrorService struct {
	cfg       ServiceConfig
	fsmgr     FilesystemManager
	mirror    *Mirror
	scheduler *Scheduler
	session   SessionChecker
	reloader  PreferenceReloader
	logger    Logger

	hookMu      sync.Mutex
	onScheduled func(stats CopyStats, err error)
}

// NewMirrorService creates a MirrorService with the provided dependencies.
func NewMirrorService(cfg ServiceConfig, fsmgr FilesystemManager, ignore Ignorer, session SessionChecker, reloader PreferenceReloader, logger Logger, clock Clock) *MirrorService {
	if cfg.PreferencesDir == "" {
		cfg.PreferencesDir = filepath.Join(cfg.DataDir, preferencesSubdir)
	}
	if cfg.PreferencesSuffix == "" {
		cfg.PreferencesSuffix = DefaultPreferencesSuffix
	}
	return &MirrorService{
		cfg:       cfg,
		fsmgr:     fsmgr,
		mirror:    NewMirror(fsmgr, ignore, logger),
		scheduler: NewScheduler(clock),
		session:   session,
		reloader:  reloader,
		logger:    logger,
	}
}

// Config returns the effective configuration.
func (s *MirrorService) Config() ServiceConfig {
	return s.cfg
}

// Mirror exposes the underlying tree mirror.
func (s *MirrorService) Mirror() *Mirror {
	return s.mirror
}

// OnScheduledBackup registers fn to be called after every backup started by
// ScheduleBackup, replacing any earlier fn. It may be called at any time;
// a backup already running uses the fn that was set when it finished.
func (s *MirrorService) OnScheduledBackup(fn func(stats CopyStats, err error)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onScheduled = fn
}

// Backup replaces the backup directory with a fresh mirror of the data directory.
func (s *MirrorService) Backup() (CopyStats, error) {
	s.logger.Info("backup started", "src", s.cfg.DataDir, "dst", s.cfg.BackupDir)

	stats, err := s.mirror.Copy(s.cfg.DataDir, s.cfg.BackupDir)
	if err != nil {
		s.logFailure("backup", err)
		return stats, fmt.Errorf("backing up %s: %w", s.cfg.DataDir, err)
	}

	s.logger.Info("backup complete", "files", stats.Files, "dirs", stats.Dirs, "bytes", stats.Bytes, "skipped", stats.Skipped)
	return stats, nil
}

// Restore replaces the data directory with the backup, then asks the host to
// reload every preference store. Preferences are reloaded even if the copy
// failed, since the data directory may have changed partially.
func (s *MirrorService) Restore() (CopyStats, error) {
	s.logger.Info("restore started", "src", s.cfg.BackupDir, "dst", s.cfg.DataDir)

	stats, copyErr := s.mirror.Copy(s.cfg.BackupDir, s.cfg.DataDir)
	if copyErr != nil {
		s.logFailure("restore", copyErr)
		copyErr = fmt.Errorf("restoring %s: %w", s.cfg.DataDir, copyErr)
	}

	names, reloadErr := s.ReloadPreferences()
	if reloadErr != nil {
		s.logger.Error("preference reload failed", "error", reloadErr)
	}

	s.logger.Info("restore completed", "files", stats.Files, "bytes", stats.Bytes, "preferences", len(names))
	return stats, errors.Join(copyErr, reloadErr)
}

// ReloadPreferences marks every preference store in the preferences
// directory dirty. Store names are file names with the suffix stripped.
// A missing directory yields no names and no error.
func (s *MirrorService) ReloadPreferences() ([]string, error) {
	names, err := s.fsmgr.ReadDir(s.cfg.PreferencesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no preferences directory", "path", s.cfg.PreferencesDir)
			return nil, nil
		}
		return nil, fmt.Errorf("listing preferences: %w", err)
	}

	var reloaded []string
	var errs []error
	for _, name := range names {
		if !strings.HasSuffix(name, s.cfg.PreferencesSuffix) {
			continue
		}
		store := strings.TrimSuffix(name, s.cfg.PreferencesSuffix)
		if store == "" {
			continue
		}
		if err := s.reloader.Reload(store); err != nil {
			errs = append(errs, fmt.Errorf("reloading %s: %w", store, err))
			continue
		}
		s.logger.Debug("preferences reloaded", "name", store)
		reloaded = append(reloaded, store)
	}
	return reloaded, errors.Join(errs...)
}

// ClearBackup deletes the backup directory.
func (s *MirrorService) ClearBackup() error {
	if err := s.mirror.Delete(s.cfg.BackupDir); err != nil {
		s.logFailure("clear", err)
		return fmt.Errorf("clearing backup: %w", err)
	}
	s.logger.Info("backup cleared", "path", s.cfg.BackupDir)
	return nil
}

// HasBackup reports whether the backup directory exists.
func (s *MirrorService) HasBackup() bool {
	return s.mirror.Exists(s.cfg.BackupDir)
}

// ScheduleBackup runs a backup once delay has passed without another call.
// Each call replaces the previous pending one. When the delay elapses the
// backup only runs if a user session is active.
// It reports whether a pending backup was superseded.
func (s *MirrorService) ScheduleBackup(delay time.Duration) bool {
	replaced := s.scheduler.Schedule(delay, s.runScheduledBackup)
	s.logger.Debug("backup scheduled", "delay", delay, "replaced", replaced)
	return replaced
}

// CancelScheduledBackup drops a pending scheduled backup.
func (s *MirrorService) CancelScheduledBackup() bool {
	return s.scheduler.Cancel()
}

// ScheduleState reports the state of the scheduled backup slot.
func (s *MirrorService) ScheduleState() ScheduleState {
	return s.scheduler.State()
}

// WaitScheduled blocks until no scheduled backup is running.
func (s *MirrorService) WaitScheduled() {
	s.scheduler.Wait()
}

func (s *MirrorService) runScheduledBackup() {
	active, err := s.session.IsActive()
	if err != nil {
		s.logger.Warn("checking session failed", "error", err)
		return
	}
	if !active {
		s.logger.Info("scheduled backup skipped", "reason", "no active session")
		return
	}

	stats, err := s.Backup()
	s.hookMu.Lock()
	hook := s.onScheduled
	s.hookMu.Unlock()
	if hook != nil {
		hook(stats, err)
	}
	s.logger.Info("scheduled backup completed", "files", stats.Files, "ok", err == nil)
}

// BackupStatus describes the backup relative to the data directory.
type BackupStatus struct {
	HasBackup bool
	Data      Fingerprint
	Backup    Fingerprint
	Schedule  ScheduleState
}

// InSync reports whether the backup holds the same number of entries and
// bytes as the data directory. Modification times are not compared because
// a copy does not preserve them.
func (st *BackupStatus) InSync() bool {
	return st.HasBackup && st.Data.Entries == st.Backup.Entries && st.Data.Bytes == st.Backup.Bytes
}

// Status fingerprints both trees.
func (s *MirrorService) Status() (*BackupStatus, error) {
	data, err := s.mirror.Fingerprint(s.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting data: %w", err)
	}
	backup, err := s.mirror.Fingerprint(s.cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting backup: %w", err)
	}
	return &BackupStatus{
		HasBackup: s.HasBackup(),
		Data:      data,
		Backup:    backup,
		Schedule:  s.scheduler.State(),
	}, nil
}

// Close cancels any pending scheduled backup and waits for a running one.
func (s *MirrorService) Close() {
	s.scheduler.Close()
}

func (s *MirrorService) logFailure(op string, err error) {
	treeErrs := TreeErrors(err)
	if len(treeErrs) == 0 {
		s.logger.Error(op+" failed", "error", err)
		return
	}
	for _, te := range treeErrs {
		s.logger.Error(op+" failed", "op", te.Op, "path", te.Path, "error", te.Err)
	}
}
