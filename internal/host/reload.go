package host

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"mirror-go/internal/mirror"
)

// TouchReloader marks a preference store dirty by bumping the modification
// time of its file. Readers that cache a store by mtime reload it.
type TouchReloader struct {
	fsmgr  mirror.FilesystemManager
	dir    string
	suffix string
}

// NewTouchReloader creates a TouchReloader for stores stored as dir/<name><suffix>.
func NewTouchReloader(fsmgr mirror.FilesystemManager, dir, suffix string) *TouchReloader {
	return &TouchReloader{fsmgr: fsmgr, dir: dir, suffix: suffix}
}

func (r *TouchReloader) Reload(name string) error {
	path := filepath.Join(r.dir, name+r.suffix)
	if err := r.fsmgr.Touch(path); err != nil {
		return fmt.Errorf("touching %s: %w", path, err)
	}
	return nil
}

// CommandReloader runs an external command once per store, with the store
// name appended as the last argument.
type CommandReloader struct {
	argv    []string
	timeout time.Duration
}

// NewCommandReloader creates a CommandReloader. argv must not be empty.
func NewCommandReloader(argv []string, timeout time.Duration) (*CommandReloader, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("reload command is empty")
	}
	return &CommandReloader{argv: argv, timeout: timeout}, nil
}

func (r *CommandReloader) Reload(name string) error {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.argv[1:]...), name)
	out, err := exec.CommandContext(ctx, r.argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", r.argv[0], err, out)
	}
	return nil
}

// NopReloader does nothing.
type NopReloader struct{}

func (NopReloader) Reload(string) error { return nil }

var (
	_ mirror.PreferenceReloader = (*TouchReloader)(nil)
	_ mirror.PreferenceReloader = (*CommandReloader)(nil)
	_ mirror.PreferenceReloader = NopReloader{}
)
