package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"mirror-go/internal/mirror"
)

// manifestName is the vault metadata item pointing at the latest archive.
const manifestName = "archive"

// Manifest describes the latest archive pushed for an application.
type Manifest struct {
	AppID     string    `json:"app_id"`
	Version   int64     `json:"version"`
	Checksum  string    `json:"checksum"` // SHA-256 of the encrypted archive
	Size      int64     `json:"size"`     // encrypted size
	Files     int       `json:"files"`
	Dirs      int       `json:"dirs"`
	Bytes     int64     `json:"bytes"` // plaintext bytes of regular files
	CreatedAt time.Time `json:"created_at"`
}

func (m *Manifest) encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.Checksum == "" {
		return nil, errors.New("manifest has no checksum")
	}
	return &m, nil
}

// Latest returns the manifest of the newest archive, or nil if none was pushed.
func (a *Archiver) Latest(ctx context.Context) (*Manifest, error) {
	var buf bytes.Buffer
	if err := a.vault.GetMetadata(ctx, a.appID, manifestName, &buf); err != nil {
		if errors.Is(err, mirror.ErrNotInVault) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return decodeManifest(buf.Bytes())
}
