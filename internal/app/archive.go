package app

import (
	"context"
	"fmt"
	"os"

	"mirror-go/internal/archive"
	"mirror-go/internal/model"
)

// historyMetadata is the vault metadata item holding a history snapshot.
const historyMetadata = "db"

// PushArchive uploads an encrypted archive of the backup directory to the
// named vault (the first vault if name is empty), then a snapshot of the
// history database. Both are versioned by this operation's ID.
func (a *MirrorApp) PushArchive(ctx context.Context, vaultName string) (*archive.Manifest, error) {
	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run 'mirror keys init' first")
	}
	arc, err := a.openVault(ctx, vaultName)
	if err != nil {
		return nil, err
	}

	// Check local history against the vault before adding to it.
	remoteVersion, err := a.vault.GetMetadataVersion(ctx, a.cfg.AppID, historyMetadata)
	if err != nil {
		return nil, fmt.Errorf("checking remote metadata version: %w", err)
	}
	localMax, err := a.db.MaxOperationID()
	if err != nil {
		return nil, fmt.Errorf("checking local metadata version: %w", err)
	}
	if remoteVersion > localMax {
		return nil, fmt.Errorf("%w (local=%d, remote=%d): pull the archive first", ErrVaultAhead, localMax, remoteVersion)
	}

	if err := a.persistOperation(a.vault.Name()); err != nil {
		return nil, err
	}

	manifest, err := arc.Push(ctx, a.op.ID)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	a.op.Result.Files = int64(manifest.Files)
	a.op.Result.Bytes = manifest.Bytes

	if err := a.db.RecordArchive(&model.Archive{
		Checksum:    manifest.Checksum,
		OperationID: a.op.ID,
		Vault:       a.vault.Name(),
		Size:        manifest.Size,
		CreatedAt:   manifest.CreatedAt,
	}); err != nil {
		a.op.Fail(err)
		return manifest, err
	}

	if err := a.uploadHistory(ctx, a.op.ID); err != nil {
		a.op.Fail(err)
		return manifest, err
	}
	return manifest, nil
}

// PullArchive replaces the backup directory with the latest archive in the
// named vault. passphrase unlocks the private key.
func (a *MirrorApp) PullArchive(ctx context.Context, vaultName, passphrase string) (*archive.PullResult, error) {
	arc, err := a.openVault(ctx, vaultName)
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(a.vault.Name()); err != nil {
		return nil, err
	}

	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		a.op.Fail(err)
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}

	result, err := arc.Pull(ctx, dc)
	if result != nil {
		a.op.Result.Files = int64(result.Files)
		a.op.Result.Bytes = result.Bytes
	}
	if err != nil {
		a.op.Fail(err)
		return result, err
	}
	return result, nil
}

// ArchiveStatus describes the latest archive in a vault and whether this
// device's history knows about it.
type ArchiveStatus struct {
	Vault    string
	Latest   *archive.Manifest // nil if the vault holds no archive
	Known    *model.Archive    // local record of Latest, nil if unknown
	Recorded []*model.Archive  // archives pushed from this device, newest first
}

// ArchiveStatus reads the latest manifest from the named vault.
func (a *MirrorApp) ArchiveStatus(ctx context.Context, vaultName string, limit int) (*ArchiveStatus, error) {
	arc, err := a.openVault(ctx, vaultName)
	if err != nil {
		return nil, err
	}
	latest, err := arc.Latest(ctx)
	if err != nil {
		return nil, err
	}
	st := &ArchiveStatus{Vault: a.vault.Name(), Latest: latest}
	if latest != nil {
		if st.Known, err = a.db.FindArchive(latest.Checksum); err != nil {
			return nil, err
		}
	}
	if st.Recorded, err = a.db.ListArchives(limit); err != nil {
		return nil, err
	}
	return st, nil
}

// uploadHistory snapshots the history database and uploads it as metadata.
// The snapshot taken here does not yet show the current operation as finished.
func (a *MirrorApp) uploadHistory(ctx context.Context, version int64) error {
	tmpFile, err := os.CreateTemp("", "mirror-db-backup-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.vault.PutMetadata(ctx, a.cfg.AppID, historyMetadata, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}
	return nil
}
