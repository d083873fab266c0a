package testutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"mirror-go/internal/mirror"
)

// MockFilesystemManager is an in-memory FilesystemManager backed by a
// go-billy memfs, with hooks to inject failures.
type MockFilesystemManager struct {
	fs billy.Filesystem

	mu       sync.Mutex
	failures map[string]error // "op path" -> error
	short    map[string]bool
	touched  map[string]int
}

// NewMockFilesystemManager creates an empty in-memory filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		fs:       memfs.New(),
		failures: make(map[string]error),
		short:    make(map[string]bool),
		touched:  make(map[string]int),
	}
}

// AddFile writes a file, creating parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	if err := m.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		panic(err)
	}
	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		panic(err)
	}
}

// AddDirectory creates a directory and its parents.
func (m *MockFilesystemManager) AddDirectory(path string) {
	if err := m.fs.MkdirAll(path, 0755); err != nil {
		panic(err)
	}
}

// ReadFile returns the content of a file.
func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Exists reports whether path exists.
func (m *MockFilesystemManager) Exists(path string) bool {
	_, err := m.fs.Lstat(path)
	return err == nil
}

// Tree returns every file under root mapped from its relative path to its
// content, and every directory mapped to nil.
func (m *MockFilesystemManager) Tree(root string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		infos, err := m.fs.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, info := range infos {
			childRel := filepath.Join(rel, info.Name())
			childPath := filepath.Join(dir, info.Name())
			if info.IsDir() {
				out[childRel+"/"] = nil
				if err := walk(childPath, childRel); err != nil {
					return err
				}
				continue
			}
			data, err := m.ReadFile(childPath)
			if err != nil {
				return err
			}
			out[childRel] = data
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// FailOn makes the named operation ("open", "create", "remove", "readdir",
// "mkdir", "touch") fail with err for path.
func (m *MockFilesystemManager) FailOn(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+path] = err
}

// ShortReadOn makes Open of path return one byte less than the file holds.
func (m *MockFilesystemManager) ShortReadOn(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.short[path] = true
}

// TouchCount returns how often Touch was called for path.
func (m *MockFilesystemManager) TouchCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched[path]
}

func (m *MockFilesystemManager) failure(op, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[op+" "+path]
}

func (m *MockFilesystemManager) Lstat(path string) (fs.FileInfo, error) {
	return m.fs.Lstat(path)
}

func (m *MockFilesystemManager) ReadDir(path string) ([]string, error) {
	if err := m.failure("readdir", path); err != nil {
		return nil, err
	}
	infos, err := m.fs.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	if err := m.failure("open", path); err != nil {
		return nil, err
	}
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	short := m.short[path]
	m.mu.Unlock()
	if !short {
		return f, nil
	}

	info, err := m.fs.Stat(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(f, info.Size()-1), f}, nil
}

func (m *MockFilesystemManager) Create(path string, perm fs.FileMode) (io.WriteCloser, error) {
	if err := m.failure("create", path); err != nil {
		return nil, err
	}
	return m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

func (m *MockFilesystemManager) MkdirAll(path string, perm fs.FileMode) error {
	if err := m.failure("mkdir", path); err != nil {
		return err
	}
	return m.fs.MkdirAll(path, perm)
}

func (m *MockFilesystemManager) Remove(path string) error {
	if err := m.failure("remove", path); err != nil {
		return err
	}
	return m.fs.Remove(path)
}

func (m *MockFilesystemManager) Touch(path string) error {
	if err := m.failure("touch", path); err != nil {
		return err
	}
	if _, err := m.fs.Stat(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[path]++
	return nil
}

// Compile-time check
var _ mirror.FilesystemManager = (*MockFilesystemManager)(nil)
