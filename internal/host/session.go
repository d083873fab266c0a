// Package host connects the mirror to the host application it serves:
// whether a user session is active, and how preference stores are
// marked for reload.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"mirror-go/internal/mirror"
)

// AlwaysActive treats every moment as inside a user session.
type AlwaysActive struct{}

func (AlwaysActive) IsActive() (bool, error) { return true, nil }

// MarkerSession reports a session as active while a marker file exists.
// The host application creates the file on login and removes it on logout.
type MarkerSession struct {
	path string
}

// NewMarkerSession creates a MarkerSession watching path.
func NewMarkerSession(path string) *MarkerSession {
	return &MarkerSession{path: path}
}

func (s *MarkerSession) IsActive() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking session marker: %w", err)
	}
}

var (
	_ mirror.SessionChecker = AlwaysActive{}
	_ mirror.SessionChecker = (*MarkerSession)(nil)
)
