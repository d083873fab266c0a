// Package archive ships the backup tree off the device: it is packed into a
// tar stream, gzip compressed, encrypted, and stored in a vault under the
// SHA-256 of the ciphertext. Pulling reverses the chain into the backup
// directory.
//
// Archive pipeline (innermost first):
//
//	tar -> gzip -> encryptor -> sha256 + staging file -> vault
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"mirror-go/internal/mirror"
)

// ErrNoArchive is returned by Pull when the vault holds no archive.
var ErrNoArchive = errors.New("no archive in vault")

// ErrChecksumMismatch means the downloaded archive is not what the manifest names.
var ErrChecksumMismatch = errors.New("archive checksum mismatch")

// Config locates the tree to archive.
type Config struct {
	AppID      string
	Root       string // the backup directory
	StagingDir string // temp files; defaults to os.TempDir()
}

// Archiver pushes and pulls archives of one backup directory.
type Archiver struct {
	appID      string
	root       string
	stagingDir string

	mirror    *mirror.Mirror
	fsmgr     mirror.FilesystemManager
	vault     mirror.Vault
	encryptor mirror.Encryptor
	clock     mirror.Clock
	logger    mirror.Logger
}

// NewArchiver creates an Archiver. m must be built on fsmgr.
func NewArchiver(cfg Config, m *mirror.Mirror, fsmgr mirror.FilesystemManager, vault mirror.Vault, encryptor mirror.Encryptor, clock mirror.Clock, logger mirror.Logger) *Archiver {
	return &Archiver{
		appID:      cfg.AppID,
		root:       cfg.Root,
		stagingDir: cfg.StagingDir,
		mirror:     m,
		fsmgr:      fsmgr,
		vault:      vault,
		encryptor:  encryptor,
		clock:      clock,
		logger:     logger,
	}
}

// Vault returns the vault archives go to.
func (a *Archiver) Vault() mirror.Vault {
	return a.vault
}

// archiveWriters is the tar -> gzip -> encrypt chain. Closing flushes each
// layer into the next, so closers run innermost first.
type archiveWriters struct {
	tar     *tar.Writer
	closers []io.Closer
}

func (aw *archiveWriters) Close() error {
	var errs []error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Archiver) setupWriters(dst io.Writer) (*archiveWriters, error) {
	enc, err := a.encryptor.Encrypt(dst)
	if err != nil {
		return nil, fmt.Errorf("starting encryption: %w", err)
	}
	aw := &archiveWriters{closers: []io.Closer{enc}}

	gz := gzip.NewWriter(enc)
	aw.closers = append(aw.closers, gz)

	aw.tar = tar.NewWriter(gz)
	aw.closers = append(aw.closers, aw.tar)
	return aw, nil
}

// Push archives the backup directory and uploads it as version.
func (a *Archiver) Push(ctx context.Context, version int64) (*Manifest, error) {
	if !a.mirror.Exists(a.root) {
		return nil, mirror.ErrNoBackup
	}

	staging, err := os.CreateTemp(a.stagingDir, "mirror-archive-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	defer func() {
		staging.Close()
		os.Remove(staging.Name())
	}()

	hasher := sha256.New()
	manifest := &Manifest{
		AppID:     a.appID,
		Version:   version,
		CreatedAt: a.clock.Now().UTC(),
	}

	if err := a.writeArchive(ctx, io.MultiWriter(staging, hasher), manifest); err != nil {
		return nil, err
	}

	size, err := staging.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("sizing archive: %w", err)
	}
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding archive: %w", err)
	}
	manifest.Size = size
	manifest.Checksum = hex.EncodeToString(hasher.Sum(nil))

	if err := a.vault.PutContent(ctx, manifest.Checksum, staging, size); err != nil {
		return nil, fmt.Errorf("uploading archive: %w", err)
	}

	data, err := manifest.encode()
	if err != nil {
		return nil, err
	}
	if err := a.vault.PutMetadata(ctx, a.appID, manifestName, bytes.NewReader(data), int64(len(data)), version); err != nil {
		return nil, fmt.Errorf("uploading manifest: %w", err)
	}

	a.logger.Info("archive pushed",
		"vault", a.vault.Name(),
		"checksum", manifest.Checksum,
		"size", manifest.Size,
		"files", manifest.Files,
		"version", version,
	)
	return manifest, nil
}

func (a *Archiver) writeArchive(ctx context.Context, dst io.Writer, manifest *Manifest) (err error) {
	aw, err := a.setupWriters(dst)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := aw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("finalizing archive: %w", closeErr)
		}
	}()

	return a.mirror.Walk(a.root, func(rel string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case info.IsDir():
			manifest.Dirs++
			return writeHeader(aw.tar, rel, info)
		case info.Mode().IsRegular():
			n, err := a.addFile(aw.tar, rel, info)
			if err != nil {
				return err
			}
			manifest.Files++
			manifest.Bytes += n
			return nil
		default:
			a.logger.Warn("not archiving non-regular file", "path", rel, "mode", info.Mode().String())
			return nil
		}
	})
}

func writeHeader(tw *tar.Writer, rel string, info fs.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building header for %s: %w", rel, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}
	// Ownership is not restored, so do not leak it.
	hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", rel, err)
	}
	return nil
}

func (a *Archiver) addFile(tw *tar.Writer, rel string, info fs.FileInfo) (int64, error) {
	if err := writeHeader(tw, rel, info); err != nil {
		return 0, err
	}
	f, err := a.fsmgr.Open(filepath.Join(a.root, rel))
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	n, err := io.CopyN(tw, f, info.Size())
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = mirror.ErrShortCopy
		}
		return n, fmt.Errorf("archiving %s: %w", rel, err)
	}
	return n, nil
}
