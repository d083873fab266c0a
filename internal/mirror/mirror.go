package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

// CopyStats summarizes what a copy transferred.
type CopyStats struct {
	Files   int
	Dirs    int
	Bytes   int64
	Skipped int // ignored entries, symlinks and special files
}

// Mirror copies and deletes file trees through a FilesystemManager.
//
// A copy is best effort: a failing entry is recorded as a *TreeError and the
// walk moves on to its siblings. The returned error joins every failure, so
// callers decide whether to log and continue or to propagate.
type Mirror struct {
	fsmgr  FilesystemManager
	ignore Ignorer
	logger Logger
}

// NewMirror creates a Mirror. ignore may be nil.
func NewMirror(fsmgr FilesystemManager, ignore Ignorer, logger Logger) *Mirror {
	return &Mirror{
		fsmgr:  fsmgr,
		ignore: ignore,
		logger: logger,
	}
}

// Copy makes dst a mirror of src.
// Anything already at dst is deleted first so no stale entries survive. If src
// does not exist, ErrSourceNotFound is returned and dst is not touched. If one
// path lies inside the other, ErrOverlappingTrees is returned and nothing is
// touched.
//
// File permission bits are copied as is. Directories keep their bits plus
// owner rwx, so their contents can be written and later deleted.
func (m *Mirror) Copy(src, dst string) (CopyStats, error) {
	var stats CopyStats

	if Overlaps(src, dst) {
		return stats, fmt.Errorf("copying %s to %s: %w", src, dst, ErrOverlappingTrees)
	}

	if _, err := m.fsmgr.Lstat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, fmt.Errorf("copying %s: %w", src, ErrSourceNotFound)
		}
		return stats, &TreeError{Op: "read", Path: src, Err: err}
	}

	if err := m.Delete(dst); err != nil {
		return stats, fmt.Errorf("clearing destination %s: %w", dst, err)
	}

	err := m.copyEntry(src, dst, ".", &stats)
	m.logger.Debug("tree copied", "src", src, "dst", dst, "files", stats.Files, "bytes", stats.Bytes)
	return stats, err
}

// copyEntry copies one entry; rel is its path relative to the copy root.
func (m *Mirror) copyEntry(src, dst, rel string, stats *CopyStats) error {
	info, err := m.fsmgr.Lstat(src)
	if err != nil {
		return &TreeError{Op: "read", Path: src, Err: err}
	}

	if rel != "." && m.ignore != nil && m.ignore.Match(rel, info.IsDir()) {
		m.logger.Debug("entry ignored", "path", src)
		stats.Skipped++
		return nil
	}

	switch {
	case info.IsDir():
		return m.copyDir(src, dst, rel, info, stats)
	case info.Mode().IsRegular():
		n, err := m.copyFile(src, dst, info)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	default:
		m.logger.Warn("skipping non-regular file", "path", src, "mode", info.Mode().String())
		stats.Skipped++
		return nil
	}
}

func (m *Mirror) copyDir(src, dst, rel string, info fs.FileInfo, stats *CopyStats) error {
	// Owner write is needed to populate the directory.
	if err := m.fsmgr.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return &TreeError{Op: "mkdir", Path: dst, Err: err}
	}
	stats.Dirs++

	names, err := m.fsmgr.ReadDir(src)
	if err != nil {
		return &TreeError{Op: "read", Path: src, Err: err}
	}

	var errs []error
	for _, name := range names {
		err := m.copyEntry(filepath.Join(src, name), filepath.Join(dst, name), filepath.Join(rel, name), stats)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// copyFile transfers exactly info.Size() bytes. A destination that ends up
// shorter than the source is removed.
func (m *Mirror) copyFile(src, dst string, info fs.FileInfo) (int64, error) {
	in, err := m.fsmgr.Open(src)
	if err != nil {
		return 0, &TreeError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	parent := filepath.Dir(dst)
	if err := m.fsmgr.MkdirAll(parent, 0755); err != nil {
		return 0, &TreeError{Op: "mkdir", Path: parent, Err: err}
	}

	out, err := m.fsmgr.Create(dst, info.Mode().Perm())
	if err != nil {
		return 0, &TreeError{Op: "copy", Path: dst, Err: err}
	}

	n, err := io.CopyN(out, in, info.Size())
	closeErr := out.Close()
	switch {
	case errors.Is(err, io.EOF):
		err = fmt.Errorf("%w: wrote %d of %d bytes", ErrShortCopy, n, info.Size())
	case err == nil && closeErr != nil:
		err = fmt.Errorf("closing destination: %w", closeErr)
	}
	if err != nil {
		if rmErr := m.fsmgr.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			m.logger.Warn("removing partial file failed", "path", dst, "error", rmErr)
		}
		return 0, &TreeError{Op: "copy", Path: dst, Err: err}
	}

	return n, nil
}

// Delete removes path and everything beneath it. A missing path is not an error.
// Deletion continues past failing entries; a directory is only removed once
// all of its children are gone.
func (m *Mirror) Delete(path string) error {
	info, err := m.fsmgr.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &TreeError{Op: "delete", Path: path, Err: err}
	}

	if info.IsDir() {
		names, err := m.fsmgr.ReadDir(path)
		if err != nil {
			return &TreeError{Op: "read", Path: path, Err: err}
		}
		var errs []error
		for _, name := range names {
			if err := m.Delete(filepath.Join(path, name)); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	}

	if err := m.fsmgr.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &TreeError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// Overlaps reports whether a and b are the same path or one lies inside the other.
func Overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

// within reports whether child is parent or lies beneath it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Exists reports whether path exists.
func (m *Mirror) Exists(path string) bool {
	_, err := m.fsmgr.Lstat(path)
	return err == nil
}
