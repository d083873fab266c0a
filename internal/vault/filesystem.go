package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mirror-go/internal/mirror"
)

// FileSystemVault stores archives in a directory, typically on removable or
// network storage:
//
//	<root>/
//	  content/
//	    <checksum>
//	  metadata/
//	    <appID>/
//	      <name>
//	      <name>.version
type FileSystemVault struct {
	name        string
	root        string
	contentDir  string
	metadataDir string
}

// NewFileSystemVault creates a vault rooted at root, creating its directories.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	v := &FileSystemVault{
		name:        name,
		root:        root,
		contentDir:  filepath.Join(root, "content"),
		metadataDir: filepath.Join(root, "metadata"),
	}
	for _, dir := range []string{v.contentDir, v.metadataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}
	return v, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// PutContent stores content identified by its checksum. Existing content is
// kept; the reader is still drained so the caller's size check holds.
func (v *FileSystemVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(v.contentDir, checksum)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return writeFileAtomic(ctx, destPath, r, size)
}

func (v *FileSystemVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	err := readFile(filepath.Join(v.contentDir, checksum), w)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("content %s: %w", checksum, mirror.ErrNotInVault)
	}
	return err
}

func (v *FileSystemVault) PutMetadata(ctx context.Context, appID, name string, r io.Reader, size int64, version int64) error {
	destPath := v.metadataPath(appID, name)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if err := writeFileAtomic(ctx, destPath, r, size); err != nil {
		return err
	}

	versionData := strconv.FormatInt(version, 10)
	return writeFileAtomic(ctx, destPath+".version", strings.NewReader(versionData), int64(len(versionData)))
}

func (v *FileSystemVault) GetMetadata(ctx context.Context, appID, name string, w io.Writer) error {
	err := readFile(v.metadataPath(appID, name), w)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("metadata %s for %s: %w", name, appID, mirror.ErrNotInVault)
	}
	return err
}

// GetMetadataVersion returns 0 if no version file exists.
func (v *FileSystemVault) GetMetadataVersion(ctx context.Context, appID, name string) (int64, error) {
	data, err := os.ReadFile(v.metadataPath(appID, name) + ".version")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the vault directories exist and are writable.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.contentDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}

	probe, err := os.CreateTemp(v.contentDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault is not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (v *FileSystemVault) metadataPath(appID, name string) string {
	return filepath.Join(v.metadataDir, filepath.FromSlash(metadataKey(appID, name)))
}

// writeFileAtomic writes r to a temp file next to destPath and renames it
// into place once exactly size bytes were written.
func writeFileAtomic(ctx context.Context, destPath string, r io.Reader, size int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

func readFile(srcPath string, w io.Writer) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

var _ mirror.Vault = (*FileSystemVault)(nil)
