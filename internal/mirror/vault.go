package mirror

import (
	"context"
	"io"
)

// Vault stores backup archives off the device.
// All operations stream through io.Reader/io.Writer so large archives are
// never held in memory.
type Vault interface {
	// Name identifies the vault in configuration and history.
	Name() string

	// PutContent stores content identified by its checksum.
	// The operation is idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(ctx context.Context, checksum string, w io.Writer) error

	// PutMetadata stores a named metadata item for an application.
	// version is stored alongside the metadata for consistency checks.
	PutMetadata(ctx context.Context, appID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item for an application and writes it to w.
	GetMetadata(ctx context.Context, appID string, name string, w io.Writer) error

	// GetMetadataVersion returns the version of a named metadata item.
	// Returns 0 if nothing has been stored under appID/name.
	GetMetadataVersion(ctx context.Context, appID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
