// Package genstore keeps per-key generation counters.
//
// A generation changes whenever a key's committed value changes, or when a
// read in flight for it is cancelled. A read remembers the generation it
// started at and may commit only while that generation is still current.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes counters untouched for longer than retention.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
