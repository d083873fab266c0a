// Package vault implements mirror.Vault backends that hold encrypted
// archives off the device.
package vault

import (
	"bytes"
	"fmt"
	"io"
	"path"
)

// metadataKey joins an application id and item name into a storage key.
func metadataKey(appID, name string) string {
	return path.Join(appID, name)
}

// readExactly reads r to the end and fails unless it held size bytes.
func readExactly(r io.Reader, size int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	return buf.Bytes(), nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
