package host

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"mirror-go/internal/fs"
)

func TestMarkerSession(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "session")
	s := NewMarkerSession(marker)

	active, err := s.IsActive()
	if err != nil {
		t.Fatalf("IsActive() error = %v", err)
	}
	if active {
		t.Error("IsActive() = true before marker exists")
	}

	if err := os.WriteFile(marker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	active, err = s.IsActive()
	if err != nil {
		t.Fatalf("IsActive() error = %v", err)
	}
	if !active {
		t.Error("IsActive() = false with marker present")
	}
}

func TestTouchReloader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.xml")
	if err := os.WriteFile(path, []byte("<map/>"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	r := NewTouchReloader(fs.NewOSFilesystemManager(), dir, ".xml")
	if err := r.Reload("settings"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().After(old.Add(time.Minute)) {
		t.Errorf("mtime = %v, expected it to be bumped", info.ModTime())
	}

	if err := r.Reload("missing"); err == nil {
		t.Error("Reload() expected error for missing store")
	}
}

func TestCommandReloader(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	t.Run("empty command", func(t *testing.T) {
		if _, err := NewCommandReloader(nil, 0); err == nil {
			t.Fatal("NewCommandReloader() expected error")
		}
	})

	t.Run("passes store name", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out")
		r, err := NewCommandReloader([]string{"sh", "-c", `echo "$1" > ` + out, "reload"}, 5*time.Second)
		if err != nil {
			t.Fatalf("NewCommandReloader() error = %v", err)
		}
		if err := r.Reload("settings"); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "settings\n" {
			t.Errorf("command saw %q, want %q", data, "settings\n")
		}
	})

	t.Run("failing command", func(t *testing.T) {
		r, _ := NewCommandReloader([]string{"sh", "-c", "exit 3"}, 0)
		if err := r.Reload("x"); err == nil {
			t.Fatal("Reload() expected error")
		}
	})
}
