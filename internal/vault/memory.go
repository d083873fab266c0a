package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"mirror-go/internal/mirror"
)

// MemoryVault keeps content and metadata in maps. It is safe for concurrent
// use and mostly useful in tests.
type MemoryVault struct {
	name     string
	mu       sync.RWMutex
	content  map[string][]byte // checksum -> content
	metadata map[string]memoryItem
}

type memoryItem struct {
	data    []byte
	version int64
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		content:  make(map[string][]byte),
		metadata: make(map[string]memoryItem),
	}
}

func (m *MemoryVault) Name() string { return m.name }

func (m *MemoryVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[checksum] = data
	return nil
}

func (m *MemoryVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[checksum]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("content %s: %w", checksum, mirror.ErrNotInVault)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryVault) PutMetadata(ctx context.Context, appID, name string, r io.Reader, size int64, version int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[metadataKey(appID, name)] = memoryItem{data: data, version: version}
	return nil
}

func (m *MemoryVault) GetMetadata(ctx context.Context, appID, name string, w io.Writer) error {
	m.mu.RLock()
	item, ok := m.metadata[metadataKey(appID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %s for %s: %w", name, appID, mirror.ErrNotInVault)
	}

	if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (m *MemoryVault) GetMetadataVersion(ctx context.Context, appID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[metadataKey(appID, name)].version, nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// ContentCount returns the number of stored content objects.
func (m *MemoryVault) ContentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

var _ mirror.Vault = (*MemoryVault)(nil)
