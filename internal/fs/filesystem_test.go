package fs

import (
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFilesystemManager_CreateAndRead(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xml")

	w, err := m.Create(path, 0600)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := io.WriteString(w, "<map/>"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	info, err := m.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	r, err := m.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "<map/>" {
		t.Errorf("content = %q, want %q", data, "<map/>")
	}
}

func TestOSFilesystemManager_ReadDirSorted(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	names, err := m.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ReadDir() = %v, want %v", names, want)
		}
	}
}

func TestOSFilesystemManager_LstatMissing(t *testing.T) {
	m := NewOSFilesystemManager()
	_, err := m.Lstat(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("Lstat() error = %v, want ErrNotExist", err)
	}
}
