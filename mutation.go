package querycache

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/querycache/internal/wire"
)

// MutationState is the lifecycle stage of a pending mutation.
type MutationState uint8

const (
	MutationBegun MutationState = iota + 1
	MutationSucceeded
	MutationFailed
	MutationSettled
)

func (s MutationState) String() string {
	switch s {
	case MutationBegun:
		return "begun"
	case MutationSucceeded:
		return "succeeded"
	case MutationFailed:
		return "failed"
	case MutationSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Mutation describes a write against the server and its effect on the cache.
//
// Keys lists the prefixes the mutation affects. Before Call runs, reads in
// flight under those prefixes are cancelled, the matched entries are
// snapshotted, and Optimistic is applied. On failure the snapshot is
// restored. On success Commit may write the server's response. Either way
// every prefix is invalidated when the mutation settles.
type Mutation[V, R any] struct {
	Name       string
	Keys       func(vars V) []Key
	Optimistic func(tx *Tx, vars V) error // optional
	Call       func(ctx context.Context, vars V) (R, error)
	Commit     func(tx *Tx, vars V, res R) error // optional
}

// PendingMutation is the record of one mutation from begin to settle.
// The snapshot it holds is frozen at begin and owned by the record.
type PendingMutation struct {
	ID      string
	Name    string
	Keys    []Key
	State   MutationState
	Started time.Time

	snapshot []byte         // wire bulk frame
	snapKeys map[string]Key // storage key -> key, for snapshotted entries
	touched  map[string]Key // storage key -> key, written optimistically
	pinned   []string
}

// MutationInfo is a read-only view of a pending mutation.
type MutationInfo struct {
	ID      string
	Name    string
	State   MutationState
	Started time.Time
	Keys    []Key
}

// PendingMutations lists mutations that have begun but not settled,
// oldest first.
func (s *Store) PendingMutations() []MutationInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MutationInfo, 0, len(s.mutations))
	for _, m := range s.mutations {
		out = append(out, MutationInfo{ID: m.ID, Name: m.Name, State: m.State, Started: m.Started, Keys: m.Keys})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Mutate runs m with vars. The optimistic update is visible to readers
// before Call starts. A failed Call (or Optimistic) returns *MutationError
// after the cache has been rolled back.
func Mutate[V, R any](ctx context.Context, s *Store, m Mutation[V, R], vars V) (R, error) {
	var zero R
	var keys []Key
	if m.Keys != nil {
		keys = m.Keys(vars)
	}
	rec := &PendingMutation{
		ID:      uuid.NewString(),
		Name:    m.Name,
		Keys:    keys,
		State:   MutationBegun,
		Started: s.now(),
	}

	var optimistic func(*Tx) error
	if m.Optimistic != nil {
		optimistic = func(tx *Tx) error { return m.Optimistic(tx, vars) }
	}
	if err := s.begin(rec, optimistic); err != nil {
		if errors.Is(err, ErrClosed) {
			return zero, err
		}
		s.settle(rec)
		return zero, &MutationError{Mutation: m.Name, ID: rec.ID, Err: err}
	}

	res, err := m.Call(ctx, vars)
	if err != nil {
		s.setState(rec, MutationFailed)
		restored, unrestored := s.rollback(rec)
		s.settle(rec)
		return zero, &MutationError{
			Mutation:   m.Name,
			ID:         rec.ID,
			Err:        err,
			RolledBack: restored,
			Unrestored: unrestored,
		}
	}

	s.setState(rec, MutationSucceeded)
	if m.Commit != nil {
		if cerr := s.Batch(func(tx *Tx) error { return m.Commit(tx, vars, res) }); cerr != nil {
			s.log.Warn("mutation commit failed", Fields{"mutation": m.Name, "id": rec.ID, "err": cerr})
		}
	}
	s.settle(rec)
	return res, nil
}

func (s *Store) setState(rec *PendingMutation, st MutationState) {
	s.mu.Lock()
	rec.State = st
	s.mu.Unlock()
}

// begin cancels reads, snapshots and applies the optimistic update under
// one lock, so no reader sees a state between those steps.
func (s *Store) begin(rec *PendingMutation, optimistic func(*Tx) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mutations[rec.ID] = rec

	for _, k := range rec.Keys {
		s.cancelLocked(k)
	}

	var items []wire.BulkItem
	rec.snapKeys = make(map[string]Key)
	for _, sk := range s.sortedKeysLocked() {
		e := s.entries[sk]
		if !matchesAny(e.key, rec.Keys) {
			continue
		}
		e.pins++
		rec.pinned = append(rec.pinned, sk)
		if raw, ok := s.loadLocked(e); ok {
			items = append(items, wire.BulkItem{Key: sk, Gen: e.valueGen, Payload: raw})
			rec.snapKeys[sk] = e.key
		}
	}
	s.stampGensLocked(items)
	frozen, err := wire.EncodeBulk(items)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rec.snapshot = frozen

	var evs []Event
	rec.touched = make(map[string]Key)
	if optimistic != nil {
		tx := s.newTx()
		if err := optimistic(tx); err != nil {
			s.mu.Unlock()
			return err
		}
		evs = s.commitLocked(tx)
		for _, sk := range tx.written() {
			e := s.entries[sk]
			rec.touched[sk] = e.key
			if _, snap := rec.snapKeys[sk]; !snap && !slices.Contains(rec.pinned, sk) {
				e.pins++
				rec.pinned = append(rec.pinned, sk)
			}
		}
	}
	s.mu.Unlock()

	s.log.Debug("mutation begun", Fields{
		"mutation":    rec.Name,
		"id":          rec.ID,
		"snapshotted": len(items),
		"optimistic":  len(rec.touched),
	})
	s.dispatch(evs)
	return nil
}

// stampGensLocked records in each item the key's generation at snapshot
// time, after the reads were cancelled. On failure the value generations
// are kept.
func (s *Store) stampGensLocked(items []wire.BulkItem) {
	if len(items) == 0 {
		return
	}
	sks := make([]string, len(items))
	for i, it := range items {
		sks[i] = it.Key
	}
	gens, err := s.gen.SnapshotMany(context.Background(), sks)
	if err != nil {
		s.hooks.GenStoreError("snapshot_many", err)
		return
	}
	for i := range items {
		items[i].Gen = gens[items[i].Key]
	}
}

// rollback restores every snapshotted key byte for byte. Keys written
// optimistically with nothing to restore are left as they are, marked
// stale, and reported.
func (s *Store) rollback(rec *PendingMutation) (restored int, unrestored []Key) {
	s.mu.Lock()
	items, err := wire.DecodeBulk(rec.snapshot)
	if err != nil {
		s.log.Error("mutation snapshot unreadable", Fields{"mutation": rec.Name, "id": rec.ID, "err": err})
		items = nil
	}

	tx := s.newTx()
	have := make(map[string]bool, len(items))
	for _, it := range items {
		key, ok := rec.snapKeys[it.Key]
		if !ok {
			continue
		}
		tx.Set(key, it.Payload)
		have[it.Key] = true
	}
	evs := s.commitLocked(tx)
	restored = len(have)

	var missing []string
	for sk := range rec.touched {
		if !have[sk] {
			missing = append(missing, sk)
		}
	}
	sort.Strings(missing)
	for _, sk := range missing {
		key := rec.touched[sk]
		if e, ok := s.entries[sk]; ok {
			e.invalidated = true
			evs = append(evs, Event{Key: key, Kind: EventInvalidated})
		}
		unrestored = append(unrestored, key)
	}
	s.mu.Unlock()

	s.hooks.RollbackApplied(rec.Name, restored)
	s.log.Info("mutation rolled back", Fields{"mutation": rec.Name, "id": rec.ID, "restored": restored})
	for _, key := range unrestored {
		s.hooks.SnapshotMissing(rec.Name, key.String())
		s.log.Warn("no snapshot for optimistic write; left stale", Fields{
			"mutation": rec.Name,
			"id":       rec.ID,
			"key":      key.String(),
		})
	}
	s.dispatch(evs)
	return restored, unrestored
}

// settle invalidates every affected prefix and releases the record.
func (s *Store) settle(rec *PendingMutation) {
	s.mu.Lock()
	var evs []Event
	for _, k := range rec.Keys {
		evs = append(evs, s.invalidateLocked(k)...)
	}
	for _, sk := range rec.pinned {
		if e, ok := s.entries[sk]; ok && e.pins > 0 {
			e.pins--
		}
	}
	rec.State = MutationSettled
	rec.snapshot = nil
	delete(s.mutations, rec.ID)
	s.mu.Unlock()

	s.dispatch(evs)
}

func matchesAny(k Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}
