package mirror

import (
	"io"
	"io/fs"
)

// FilesystemManager abstracts the filesystem operations the mirror needs,
// so trees can be copied and deleted without touching a real disk in tests.
// All paths are absolute.
type FilesystemManager interface {
	// Lstat returns info for path without following a final symlink.
	// A missing path yields an error satisfying errors.Is(err, fs.ErrNotExist).
	Lstat(path string) (fs.FileInfo, error)

	// ReadDir returns the entry names of a directory in lexical order.
	ReadDir(path string) ([]string, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Create creates or truncates a file for writing with the given permissions.
	Create(path string, perm fs.FileMode) (io.WriteCloser, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error

	// Remove removes a single file or empty directory.
	Remove(path string) error

	// Touch sets the modification and access time of path to now.
	Touch(path string) error
}

// Ignorer decides whether a path relative to a copy root is left out of a mirror.
type Ignorer interface {
	Match(relativePath string, isDir bool) bool
}
