package querycache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("querycache: store closed")

	// ErrCanceled is returned to callers whose read was cancelled by a
	// mutation (CancelInFlight) or by Store.Close.
	ErrCanceled = errors.New("querycache: read canceled")

	// ErrSnapshotMissing marks a key a failed mutation wrote optimistically
	// without having captured a snapshot of it first.
	ErrSnapshotMissing = errors.New("querycache: no snapshot for optimistically written key")
)

// MutationError is returned by Mutate when the remote call (or the
// optimistic phase) failed. The cache has already been rolled back.
type MutationError struct {
	Mutation   string
	ID         string
	Err        error
	RolledBack int   // keys restored from the snapshot
	Unrestored []Key // optimistic writes with no snapshot; left stale
}

func (e *MutationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mutation %q failed: %v", e.Mutation, e.Err)
	if len(e.Unrestored) > 0 {
		names := make([]string, len(e.Unrestored))
		for i, k := range e.Unrestored {
			names[i] = k.String()
		}
		fmt.Fprintf(&b, " (not restored: %s)", strings.Join(names, ", "))
	}
	return b.String()
}

func (e *MutationError) Unwrap() []error {
	errs := []error{e.Err}
	if len(e.Unrestored) > 0 {
		errs = append(errs, ErrSnapshotMissing)
	}
	return errs
}
