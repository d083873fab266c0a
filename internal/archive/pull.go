package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mirror-go/internal/mirror"
)

// PullResult summarizes an extracted archive.
type PullResult struct {
	Manifest *Manifest
	Files    int
	Dirs     int
	Bytes    int64
}

// Pull downloads the latest archive, verifies it, and replaces the backup
// directory with its contents. The archive is validated in full before the
// existing backup is deleted.
func (a *Archiver) Pull(ctx context.Context, dc mirror.DecryptionContext) (*PullResult, error) {
	manifest, err := a.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, ErrNoArchive
	}

	staging, err := os.CreateTemp(a.stagingDir, "mirror-pull-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	defer func() {
		staging.Close()
		os.Remove(staging.Name())
	}()

	hasher := sha256.New()
	if err := a.vault.GetContent(ctx, manifest.Checksum, io.MultiWriter(staging, hasher)); err != nil {
		return nil, fmt.Errorf("downloading archive %s: %w", manifest.Checksum, err)
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != manifest.Checksum {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, manifest.Checksum, got)
	}

	// Pass 1: validate names and totals without touching the backup.
	check := &PullResult{Manifest: manifest}
	if err := a.readArchive(ctx, staging, dc, func(hdr *tar.Header, _ string, r io.Reader) error {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return err
		}
		countEntry(check, hdr, n)
		return nil
	}); err != nil {
		return nil, err
	}
	if check.Files != manifest.Files || check.Bytes != manifest.Bytes {
		return nil, fmt.Errorf("archive holds %d files (%d bytes), manifest says %d files (%d bytes)",
			check.Files, check.Bytes, manifest.Files, manifest.Bytes)
	}

	if err := a.mirror.Delete(a.root); err != nil {
		return nil, fmt.Errorf("clearing backup: %w", err)
	}
	if err := a.fsmgr.MkdirAll(a.root, 0700); err != nil {
		return nil, fmt.Errorf("creating backup root: %w", err)
	}

	// Pass 2: extract.
	result := &PullResult{Manifest: manifest}
	if err := a.readArchive(ctx, staging, dc, func(hdr *tar.Header, target string, r io.Reader) error {
		n, err := a.extract(hdr, target, r)
		if err != nil {
			return err
		}
		countEntry(result, hdr, n)
		return nil
	}); err != nil {
		return result, err
	}

	a.logger.Info("archive pulled",
		"vault", a.vault.Name(),
		"checksum", manifest.Checksum,
		"files", result.Files,
		"version", manifest.Version,
	)
	return result, nil
}

func countEntry(r *PullResult, hdr *tar.Header, n int64) {
	if hdr.Typeflag == tar.TypeDir {
		r.Dirs++
		return
	}
	r.Files++
	r.Bytes += n
}

type entryFunc func(hdr *tar.Header, target string, r io.Reader) error

// readArchive decrypts and walks the staged archive from the start, calling
// fn with the destination path of every entry.
func (a *Archiver) readArchive(ctx context.Context, staging *os.File, dc mirror.DecryptionContext, fn entryFunc) error {
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding archive: %w", err)
	}
	plain, err := dc.Decrypt(staging)
	if err != nil {
		return fmt.Errorf("decrypting archive: %w", err)
	}
	gz, err := gzip.NewReader(plain)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		target, err := destPath(a.root, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg:
		default:
			return fmt.Errorf("unsupported entry type %q for %s", hdr.Typeflag, hdr.Name)
		}
		if err := fn(hdr, target, tr); err != nil {
			return err
		}
	}
}

// destPath maps an archive entry name onto root, rejecting names that
// would land outside it.
func destPath(root, name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid entry name %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("entry %q escapes the backup directory", name)
	}
	target := filepath.Join(root, filepath.FromSlash(cleaned))
	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the backup directory", name)
	}
	return target, nil
}

func (a *Archiver) extract(hdr *tar.Header, target string, r io.Reader) (int64, error) {
	perm := fs.FileMode(hdr.Mode).Perm()
	if hdr.Typeflag == tar.TypeDir {
		if err := a.fsmgr.MkdirAll(target, perm|0700); err != nil {
			return 0, &mirror.TreeError{Op: "mkdir", Path: target, Err: err}
		}
		return 0, nil
	}

	if err := a.fsmgr.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return 0, &mirror.TreeError{Op: "mkdir", Path: filepath.Dir(target), Err: err}
	}
	out, err := a.fsmgr.Create(target, perm)
	if err != nil {
		return 0, &mirror.TreeError{Op: "extract", Path: target, Err: err}
	}
	n, err := io.CopyN(out, r, hdr.Size)
	closeErr := out.Close()
	if err != nil {
		return n, &mirror.TreeError{Op: "extract", Path: target, Err: err}
	}
	if closeErr != nil {
		return n, &mirror.TreeError{Op: "extract", Path: target, Err: closeErr}
	}
	return n, nil
}
