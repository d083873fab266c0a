package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")

	v, err := NewFileSystemVault("local", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	for _, dir := range []string{"content", "metadata"} {
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			t.Errorf("%s directory not created: %v", dir, err)
		}
	}
	if v.Name() != "local" {
		t.Errorf("Name() = %q, want %q", v.Name(), "local")
	}
}

func TestFileSystemVault_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	v, err := NewFileSystemVault("local", root)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.PutContent(ctx, "abc", strings.NewReader("data"), 4); err != nil {
		t.Fatal(err)
	}
	if err := v.PutMetadata(ctx, "com.example.app", "archive", strings.NewReader("abc"), 3, 12); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{
		"content/abc",
		"metadata/com.example.app/archive",
		"metadata/com.example.app/archive.version",
	} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("%s missing: %v", rel, err)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(root, "content", ".tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("local", root)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(root, "content")); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() expected error with content directory missing")
	}
}

func TestFileSystemVault_CancelledContext(t *testing.T) {
	v, err := NewFileSystemVault("local", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := v.PutContent(ctx, "abc", strings.NewReader("data"), 4); err == nil {
		t.Fatal("PutContent() expected error for cancelled context")
	}
	if _, err := os.Stat(filepath.Join(v.contentDir, "abc")); !os.IsNotExist(err) {
		t.Error("content stored despite cancellation")
	}
}
