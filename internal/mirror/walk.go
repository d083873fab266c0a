package mirror

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"
)

// WalkFunc is called for every entry below a walk root, root excluded.
// rel is relative to the walk root. Returning fs.SkipDir from a
// directory skips its contents; any other error stops the walk.
type WalkFunc func(rel string, info fs.FileInfo) error

// Walk visits the tree under root depth first in lexical order.
// Symlinks are reported but not followed.
func (m *Mirror) Walk(root string, fn WalkFunc) error {
	info, err := m.fsmgr.Lstat(root)
	if err != nil {
		return &TreeError{Op: "read", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil
	}
	return m.walkDir(root, ".", fn)
}

func (m *Mirror) walkDir(dir, rel string, fn WalkFunc) error {
	names, err := m.fsmgr.ReadDir(dir)
	if err != nil {
		return &TreeError{Op: "read", Path: dir, Err: err}
	}

	for _, name := range names {
		childPath := filepath.Join(dir, name)
		childRel := filepath.Join(rel, name)

		info, err := m.fsmgr.Lstat(childPath)
		if err != nil {
			return &TreeError{Op: "read", Path: childPath, Err: err}
		}

		if err := fn(childRel, info); err != nil {
			if errors.Is(err, fs.SkipDir) && info.IsDir() {
				continue
			}
			return err
		}

		if info.IsDir() {
			if err := m.walkDir(childPath, childRel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Fingerprint is a cheap summary of a tree used to detect changes.
type Fingerprint struct {
	Entries  int
	Bytes    int64
	LatestAt time.Time
}

// Fingerprint summarizes the tree under root. Ignored entries are left out.
// A missing root has the zero Fingerprint.
func (m *Mirror) Fingerprint(root string) (Fingerprint, error) {
	var fp Fingerprint
	if !m.Exists(root) {
		return fp, nil
	}
	err := m.Walk(root, func(rel string, info fs.FileInfo) error {
		if m.ignore != nil && m.ignore.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		fp.Entries++
		if info.Mode().IsRegular() {
			fp.Bytes += info.Size()
		}
		if info.ModTime().After(fp.LatestAt) {
			fp.LatestAt = info.ModTime()
		}
		return nil
	})
	return fp, err
}
