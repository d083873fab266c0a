package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"mirror-go/internal/mirror"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

func (m *OSFilesystemManager) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// ReadDir returns names sorted by os.ReadDir.
func (m *OSFilesystemManager) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Create truncates an existing file. The mode of an existing file is reset to perm.
func (m *OSFilesystemManager) Create(path string, perm fs.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting permissions: %w", err)
	}
	return f, nil
}

func (m *OSFilesystemManager) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

func (m *OSFilesystemManager) Touch(path string) error {
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// Compile-time check that OSFilesystemManager implements mirror.FilesystemManager
var _ mirror.FilesystemManager = (*OSFilesystemManager)(nil)
