package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned by a top-level copy whose source is missing.
	// The destination is left untouched.
	ErrSourceNotFound = errors.New("source does not exist")

	// ErrShortCopy means fewer bytes reached the destination than the source held.
	ErrShortCopy = errors.New("short copy")

	// ErrNoBackup is returned by operations that need an existing backup.
	ErrNoBackup = errors.New("no backup found")

	// ErrOverlappingTrees is returned by a copy whose source and destination
	// are the same tree or one contains the other.
	ErrOverlappingTrees = errors.New("source and destination overlap")

	// ErrNotInVault is returned when a vault holds no object under a key.
	ErrNotInVault = errors.New("not found in vault")
)

// TreeError records a failure on a single entry of a copy or delete.
type TreeError struct {
	Op   string // "copy", "mkdir", "delete", "read"
	Path string
	Err  error
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TreeError) Unwrap() error { return e.Err }

// TreeErrors flattens an error returned by Copy or Delete into its
// per-entry failures.
func TreeErrors(err error) []*TreeError {
	switch e := err.(type) {
	case nil:
		return nil
	case *TreeError:
		return []*TreeError{e}
	case interface{ Unwrap() []error }:
		var out []*TreeError
		for _, inner := range e.Unwrap() {
			out = append(out, TreeErrors(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return TreeErrors(e.Unwrap())
	default:
		return nil
	}
}
