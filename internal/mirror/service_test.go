package mirror_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"mirror-go/internal/mirror"
	"mirror-go/internal/testutil"
)

const (
	dataDir   = "/data/data/com.example.app"
	backupDir = "/backups/com.example.app"
)

type serviceFixture struct {
	svc      *mirror.MirrorService
	fsmgr    *testutil.MockFilesystemManager
	clock    *testutil.ManualClock
	session  *testutil.StubSession
	reloader *testutil.RecordingReloader
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		fsmgr:    testutil.NewMockFilesystemManager(),
		clock:    testutil.FixedClock(),
		session:  testutil.NewStubSession(true),
		reloader: testutil.NewRecordingReloader(),
	}
	f.svc = mirror.NewMirrorService(
		mirror.ServiceConfig{DataDir: dataDir, BackupDir: backupDir},
		f.fsmgr, nil, f.session, f.reloader, mirror.NewNopLogger(), f.clock,
	)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *serviceFixture) seedData() {
	f.fsmgr.AddFile(dataDir+"/shared_prefs/settings.xml", []byte("<map><boolean name=\"dark\" value=\"true\"/></map>"))
	f.fsmgr.AddFile(dataDir+"/shared_prefs/user.xml", []byte("<map/>"))
	f.fsmgr.AddFile(dataDir+"/databases/app.db", []byte("rows"))
	f.fsmgr.AddDirectory(dataDir + "/cache")
}

func (f *serviceFixture) tree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree, err := f.fsmgr.Tree(root)
	if err != nil {
		t.Fatalf("Tree(%s) error = %v", root, err)
	}
	out := make(map[string]string, len(tree))
	for k, v := range tree {
		out[k] = string(v)
	}
	return out
}

func TestMirrorService_Defaults(t *testing.T) {
	f := newServiceFixture(t)
	cfg := f.svc.Config()
	if cfg.PreferencesDir != dataDir+"/shared_prefs" {
		t.Errorf("PreferencesDir = %q", cfg.PreferencesDir)
	}
	if cfg.PreferencesSuffix != ".xml" {
		t.Errorf("PreferencesSuffix = %q", cfg.PreferencesSuffix)
	}
}

func TestMirrorService_BackupAndHasBackup(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()

	if f.svc.HasBackup() {
		t.Fatal("HasBackup() = true before any backup")
	}

	stats, err := f.svc.Backup()
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if stats.Files != 3 {
		t.Errorf("stats.Files = %d, want 3", stats.Files)
	}
	if !f.svc.HasBackup() {
		t.Fatal("HasBackup() = false after backup")
	}

	assertTree(t, f.tree(t, backupDir), f.tree(t, dataDir))
}

func TestMirrorService_BackupRemovesStaleFiles(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()
	f.fsmgr.AddFile(backupDir+"/shared_prefs/deleted.xml", []byte("old"))

	if _, err := f.svc.Backup(); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if f.fsmgr.Exists(backupDir + "/shared_prefs/deleted.xml") {
		t.Error("stale file survived the backup")
	}
}

func TestMirrorService_Restore(t *testing.T) {
	f := newServiceFixture(t)
	f.fsmgr.AddFile(backupDir+"/shared_prefs/settings.xml", []byte("restored"))
	f.fsmgr.AddFile(backupDir+"/shared_prefs/user.xml", []byte("restored"))
	f.fsmgr.AddFile(backupDir+"/shared_prefs/notes.txt", []byte("not a store"))
	f.fsmgr.AddFile(backupDir+"/files/photo.jpg", []byte{0xff, 0xd8})
	f.fsmgr.AddFile(dataDir+"/files/newer.jpg", []byte("gone after restore"))

	if _, err := f.svc.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	assertTree(t, f.tree(t, dataDir), f.tree(t, backupDir))

	names := f.reloader.Names()
	if len(names) != 2 || names[0] != "settings" || names[1] != "user" {
		t.Errorf("reloaded %v, want [settings user]", names)
	}
}

func TestMirrorService_RestoreWithoutBackup(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()
	before := f.tree(t, dataDir)

	_, err := f.svc.Restore()
	if !errors.Is(err, mirror.ErrSourceNotFound) {
		t.Fatalf("Restore() error = %v, want ErrSourceNotFound", err)
	}

	assertTree(t, f.tree(t, dataDir), before)

	// The preference scan still runs against the untouched data.
	names := f.reloader.Names()
	if len(names) != 2 {
		t.Errorf("reloaded %v, want both stores", names)
	}
}

func TestMirrorService_RestoreFromBackupInsideData(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	nested := dataDir + "/backups"
	svc := mirror.NewMirrorService(
		mirror.ServiceConfig{DataDir: dataDir, BackupDir: nested},
		fsmgr, nil, testutil.NewStubSession(true), testutil.NewRecordingReloader(), mirror.NewNopLogger(), testutil.FixedClock(),
	)
	t.Cleanup(svc.Close)

	fsmgr.AddFile(dataDir+"/files/a.txt", []byte("data"))
	fsmgr.AddFile(nested+"/files/a.txt", []byte("backup"))
	before, err := fsmgr.Tree(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Restore(); !errors.Is(err, mirror.ErrOverlappingTrees) {
		t.Fatalf("Restore() error = %v, want ErrOverlappingTrees", err)
	}
	if _, err := svc.Backup(); !errors.Is(err, mirror.ErrOverlappingTrees) {
		t.Fatalf("Backup() error = %v, want ErrOverlappingTrees", err)
	}

	after, err := fsmgr.Tree(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("tree changed: %v, want %v", after, before)
	}
	for k, v := range before {
		if string(after[k]) != string(v) {
			t.Errorf("%s = %q, want %q", k, after[k], v)
		}
	}
}

func TestMirrorService_ReloadPreferences(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		failOn  string
		want    []string
		wantErr bool
	}{
		{
			name:  "no preferences directory",
			files: nil,
			want:  nil,
		},
		{
			name:  "only suffix matches",
			files: []string{"a.xml", "b.xml.bak", "c.txt", "d.xml"},
			want:  []string{"a", "d"},
		},
		{
			name:  "bare suffix is not a store",
			files: []string{".xml", "real.xml"},
			want:  []string{"real"},
		},
		{
			name:    "failure continues with other stores",
			files:   []string{"a.xml", "b.xml", "c.xml"},
			failOn:  "b",
			want:    []string{"a", "c"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			for _, name := range tt.files {
				f.fsmgr.AddFile(dataDir+"/shared_prefs/"+name, []byte("<map/>"))
			}
			if tt.failOn != "" {
				f.reloader.FailOn(tt.failOn, errors.New("store locked"))
			}

			got, err := f.svc.ReloadPreferences()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReloadPreferences() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ReloadPreferences() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("ReloadPreferences()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMirrorService_ClearBackup(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()
	if _, err := f.svc.Backup(); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.ClearBackup(); err != nil {
		t.Fatalf("ClearBackup() error = %v", err)
	}
	if f.svc.HasBackup() {
		t.Error("HasBackup() = true after clear")
	}
	if !f.fsmgr.Exists(dataDir + "/databases/app.db") {
		t.Error("clearing the backup touched the data directory")
	}

	if err := f.svc.ClearBackup(); err != nil {
		t.Errorf("ClearBackup() on missing backup error = %v", err)
	}
}

func TestMirrorService_BackupReportsFailures(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()
	f.fsmgr.FailOn("open", dataDir+"/databases/app.db", errors.New("locked"))

	stats, err := f.svc.Backup()
	if err == nil {
		t.Fatal("Backup() expected error")
	}
	if got := len(mirror.TreeErrors(err)); got != 1 {
		t.Errorf("TreeErrors() = %d, want 1", got)
	}
	if stats.Files != 2 {
		t.Errorf("stats.Files = %d, want 2", stats.Files)
	}
	if !f.fsmgr.Exists(backupDir + "/shared_prefs/user.xml") {
		t.Error("sibling files were not backed up")
	}
}

func TestMirrorService_ScheduleBackupDebounces(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()

	var mu sync.Mutex
	var runs []time.Time
	f.svc.OnScheduledBackup(func(stats mirror.CopyStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			t.Errorf("scheduled backup error = %v", err)
		}
		runs = append(runs, f.clock.Now())
	})

	start := f.clock.Now()
	f.svc.ScheduleBackup(time.Second)
	f.clock.Advance(400 * time.Millisecond)
	if replaced := f.svc.ScheduleBackup(time.Second); !replaced {
		t.Error("second ScheduleBackup() did not replace the first")
	}

	f.clock.Advance(600 * time.Millisecond)
	if f.svc.HasBackup() {
		t.Fatal("backup ran at the first call's deadline")
	}
	if f.svc.ScheduleState() != mirror.StatePending {
		t.Errorf("ScheduleState() = %v, want pending", f.svc.ScheduleState())
	}

	f.clock.Advance(400 * time.Millisecond)
	f.svc.WaitScheduled()

	mu.Lock()
	defer mu.Unlock()
	if len(runs) != 1 {
		t.Fatalf("scheduled backup ran %d times, want 1", len(runs))
	}
	if want := start.Add(1400 * time.Millisecond); !runs[0].Equal(want) {
		t.Errorf("backup ran at %v, want %v", runs[0], want)
	}
	if !f.svc.HasBackup() {
		t.Error("HasBackup() = false after scheduled backup")
	}
}

func TestMirrorService_ScheduleBackupSkipsWithoutSession(t *testing.T) {
	tests := []struct {
		name       string
		active     bool
		sessionErr error
	}{
		{name: "inactive session", active: false},
		{name: "session check fails", active: true, sessionErr: errors.New("presenter gone")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.seedData()
			f.session.SetActive(tt.active)
			f.session.SetError(tt.sessionErr)

			called := false
			f.svc.OnScheduledBackup(func(mirror.CopyStats, error) { called = true })

			f.svc.ScheduleBackup(mirror.DefaultScheduleDelay)
			f.clock.Advance(mirror.DefaultScheduleDelay)

			if f.session.Calls() != 1 {
				t.Errorf("session checked %d times, want 1", f.session.Calls())
			}
			if called || f.svc.HasBackup() {
				t.Error("backup ran without an active session")
			}
		})
	}
}

func TestMirrorService_OnScheduledBackupAfterSchedule(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()

	f.svc.ScheduleBackup(time.Second)

	var mu sync.Mutex
	var got []mirror.CopyStats
	f.svc.OnScheduledBackup(func(stats mirror.CopyStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			t.Errorf("scheduled backup error = %v", err)
		}
		got = append(got, stats)
	})
	f.clock.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback ran %d times, want 1", len(got))
	}
	if got[0].Files == 0 {
		t.Errorf("callback stats = %+v, want copied files", got[0])
	}
}

func TestMirrorService_CancelScheduledBackup(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()

	f.svc.ScheduleBackup(time.Second)
	if !f.svc.CancelScheduledBackup() {
		t.Fatal("CancelScheduledBackup() = false with a pending backup")
	}
	f.clock.Advance(time.Minute)

	if f.svc.HasBackup() {
		t.Error("cancelled backup ran")
	}
	if f.session.Calls() != 0 {
		t.Error("session checked for a cancelled backup")
	}
}

func TestMirrorService_Status(t *testing.T) {
	f := newServiceFixture(t)
	f.seedData()

	st, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.HasBackup || st.InSync() {
		t.Errorf("Status() before backup = %+v", st)
	}
	if st.Data.Entries != 6 {
		t.Errorf("Data.Entries = %d, want 6", st.Data.Entries)
	}

	if _, err := f.svc.Backup(); err != nil {
		t.Fatal(err)
	}
	st, err = f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.InSync() {
		t.Errorf("Status() after backup not in sync: %+v", st)
	}

	f.fsmgr.AddFile(dataDir+"/files/new.txt", []byte("new"))
	st, err = f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.InSync() {
		t.Error("Status() in sync after data changed")
	}
}
