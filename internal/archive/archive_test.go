package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"mirror-go/internal/archive"
	"mirror-go/internal/mirror"
	"mirror-go/internal/testutil"
	"mirror-go/internal/vault"
)

const (
	appID      = "com.example.app"
	backupRoot = "/backups/com.example.app"
)

type archiveFixture struct {
	fsmgr    *testutil.MockFilesystemManager
	vault    *vault.MemoryVault
	archiver *archive.Archiver
}

func newArchiveFixture(t *testing.T) *archiveFixture {
	t.Helper()
	fsmgr := testutil.NewMockFilesystemManager()
	v := testutil.NewTestVault()
	logger := mirror.NewNopLogger()
	m := mirror.NewMirror(fsmgr, nil, logger)
	a := archive.NewArchiver(
		archive.Config{AppID: appID, Root: backupRoot, StagingDir: t.TempDir()},
		m, fsmgr, v, testutil.NewTestEncryptor(), testutil.FixedClock(), logger,
	)
	return &archiveFixture{fsmgr: fsmgr, vault: v, archiver: a}
}

func (f *archiveFixture) seed() {
	f.fsmgr.AddFile(backupRoot+"/shared_prefs/settings.xml", []byte("<map/>"))
	f.fsmgr.AddFile(backupRoot+"/databases/app.db", bytes.Repeat([]byte("d"), 4096))
	f.fsmgr.AddFile(backupRoot+"/files/empty", nil)
	f.fsmgr.AddDirectory(backupRoot + "/cache")
}

func TestPush(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()
	ctx := context.Background()

	manifest, err := f.archiver.Push(ctx, 7)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if manifest.Files != 3 {
		t.Errorf("Files = %d, want 3", manifest.Files)
	}
	if manifest.Dirs != 4 {
		t.Errorf("Dirs = %d, want 4", manifest.Dirs)
	}
	if manifest.Bytes != 6+4096 {
		t.Errorf("Bytes = %d, want %d", manifest.Bytes, 6+4096)
	}
	if manifest.Version != 7 || manifest.AppID != appID {
		t.Errorf("manifest = %+v", manifest)
	}
	if !manifest.CreatedAt.Equal(testutil.FixedClock().Now()) {
		t.Errorf("CreatedAt = %v", manifest.CreatedAt)
	}
	if f.vault.ContentCount() != 1 {
		t.Errorf("ContentCount() = %d, want 1", f.vault.ContentCount())
	}

	var stored bytes.Buffer
	if err := f.vault.GetContent(ctx, manifest.Checksum, &stored); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if int64(stored.Len()) != manifest.Size {
		t.Errorf("stored %d bytes, manifest says %d", stored.Len(), manifest.Size)
	}
	if got := testutil.SHA256Hex(stored.Bytes()); got != manifest.Checksum {
		t.Errorf("checksum = %s, want %s", got, manifest.Checksum)
	}

	version, err := f.vault.GetMetadataVersion(ctx, appID, "archive")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 7 {
		t.Errorf("metadata version = %d, want 7", version)
	}

	latest, err := f.archiver.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil || latest.Checksum != manifest.Checksum {
		t.Errorf("Latest() = %+v, want checksum %s", latest, manifest.Checksum)
	}
}

func TestPushWithoutBackup(t *testing.T) {
	f := newArchiveFixture(t)
	_, err := f.archiver.Push(context.Background(), 1)
	if !errors.Is(err, mirror.ErrNoBackup) {
		t.Fatalf("Push() error = %v, want ErrNoBackup", err)
	}
	if f.vault.ContentCount() != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestPushCancelled(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.archiver.Push(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("Push() error = %v, want context.Canceled", err)
	}
	if f.vault.ContentCount() != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestPushShortRead(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()
	f.fsmgr.ShortReadOn(backupRoot + "/databases/app.db")

	_, err := f.archiver.Push(context.Background(), 1)
	if !errors.Is(err, mirror.ErrShortCopy) {
		t.Fatalf("Push() error = %v, want ErrShortCopy", err)
	}
}

func TestLatestEmpty(t *testing.T) {
	f := newArchiveFixture(t)
	m, err := f.archiver.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if m != nil {
		t.Errorf("Latest() = %+v, want nil", m)
	}
}

func TestPull(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()
	ctx := context.Background()

	want, err := f.fsmgr.Tree(backupRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.archiver.Push(ctx, 3); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	// Diverge the backup so Pull has something to undo.
	f.fsmgr.AddFile(backupRoot+"/stale.txt", []byte("stale"))
	f.fsmgr.AddFile(backupRoot+"/shared_prefs/settings.xml", []byte("changed"))

	dc, _ := testutil.NewTestEncryptor().Unlock("")
	result, err := f.archiver.Pull(ctx, dc)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if result.Files != 3 || result.Bytes != 6+4096 {
		t.Errorf("result = %+v", result)
	}
	if result.Manifest.Version != 3 {
		t.Errorf("version = %d, want 3", result.Manifest.Version)
	}

	got, err := f.fsmgr.Tree(backupRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("tree has %d entries, want %d: %v", len(got), len(want), got)
	}
	for rel, content := range want {
		gotContent, ok := got[rel]
		if !ok {
			t.Errorf("missing %s", rel)
			continue
		}
		if !bytes.Equal(gotContent, content) {
			t.Errorf("%s = %q, want %q", rel, gotContent, content)
		}
	}
}

func TestPullWithoutArchive(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()

	dc, _ := testutil.NewTestEncryptor().Unlock("")
	_, err := f.archiver.Pull(context.Background(), dc)
	if !errors.Is(err, archive.ErrNoArchive) {
		t.Fatalf("Pull() error = %v, want ErrNoArchive", err)
	}
	if !f.fsmgr.Exists(backupRoot + "/databases/app.db") {
		t.Error("backup should be untouched")
	}
}

// corruptingVault flips a byte of every content read.
type corruptingVault struct {
	*vault.MemoryVault
}

func (v corruptingVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	var buf bytes.Buffer
	if err := v.MemoryVault.GetContent(ctx, checksum, &buf); err != nil {
		return err
	}
	data := buf.Bytes()
	data[len(data)/2] ^= 0xff
	_, err := w.Write(data)
	return err
}

func TestPullChecksumMismatch(t *testing.T) {
	f := newArchiveFixture(t)
	f.seed()
	ctx := context.Background()
	if _, err := f.archiver.Push(ctx, 1); err != nil {
		t.Fatal(err)
	}

	m := mirror.NewMirror(f.fsmgr, nil, mirror.NewNopLogger())
	bad := archive.NewArchiver(
		archive.Config{AppID: appID, Root: backupRoot, StagingDir: t.TempDir()},
		m, f.fsmgr, corruptingVault{f.vault}, testutil.NewTestEncryptor(), testutil.FixedClock(), mirror.NewNopLogger(),
	)

	dc, _ := testutil.NewTestEncryptor().Unlock("")
	_, err := bad.Pull(ctx, dc)
	if !errors.Is(err, archive.ErrChecksumMismatch) {
		t.Fatalf("Pull() error = %v, want ErrChecksumMismatch", err)
	}
	if !f.fsmgr.Exists(backupRoot + "/databases/app.db") {
		t.Error("backup should be untouched")
	}
}
