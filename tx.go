package querycache

import (
	"bytes"
	"sort"
)

// Tx stages writes against the store. Staged writes are visible to the
// transaction's own reads and are applied together when the batch
// function returns nil; subscribers hear about them only afterwards.
//
// A Tx is valid only inside the function it was passed to.
type Tx struct {
	s          *Store
	sets       map[string]stagedSet
	order      []string
	invalidate []Key
}

type stagedSet struct {
	key Key
	raw []byte
}

// Batch runs fn with the store locked. If fn returns an error nothing is
// applied.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	tx := s.newTx()
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	evs := s.commitLocked(tx)
	s.mu.Unlock()
	s.dispatch(evs)
	return nil
}

func (s *Store) newTx() *Tx {
	return &Tx{s: s, sets: make(map[string]stagedSet)}
}

// Get returns the encoded value at key, staged writes first.
func (tx *Tx) Get(key Key) ([]byte, bool) {
	sk := tx.s.storageKey(key)
	if st, ok := tx.sets[sk]; ok {
		return bytes.Clone(st.raw), true
	}
	e, ok := tx.s.entries[sk]
	if !ok {
		return nil, false
	}
	return tx.s.loadLocked(e)
}

// Keys lists keys matched by prefix that hold a value, staged or committed,
// ordered by canonical ID.
func (tx *Tx) Keys(prefix Key) []Key {
	seen := make(map[string]Key)
	for _, k := range tx.s.keysLocked(prefix) {
		seen[k.ID()] = k
	}
	for _, st := range tx.sets {
		if st.key.HasPrefix(prefix) {
			seen[st.key.ID()] = st.key
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Key, len(ids))
	for i, id := range ids {
		out[i] = seen[id]
	}
	return out
}

// Set stages raw at key. The last Set of a key wins.
func (tx *Tx) Set(key Key, raw []byte) {
	sk := tx.s.storageKey(key)
	if _, ok := tx.sets[sk]; !ok {
		tx.order = append(tx.order, sk)
	}
	tx.sets[sk] = stagedSet{key: key, raw: bytes.Clone(raw)}
}

// Invalidate stages marking prefix stale. It applies after all sets.
func (tx *Tx) Invalidate(prefix Key) {
	tx.invalidate = append(tx.invalidate, prefix)
}

// written returns storage keys staged by Set, in first-write order.
func (tx *Tx) written() []string {
	return append([]string(nil), tx.order...)
}

func (s *Store) commitLocked(tx *Tx) []Event {
	now := s.now()
	evs := make([]Event, 0, len(tx.order))
	for _, sk := range tx.order {
		st := tx.sets[sk]
		e := s.entryLocked(st.key, now)
		evs = append(evs, s.writeLocked(e, st.raw, now))
	}
	for _, p := range tx.invalidate {
		evs = append(evs, s.invalidateLocked(p)...)
	}
	return evs
}

// Put encodes v with the store's codec and stages it at key.
func Put[T any](tx *Tx, key Key, v T) error {
	raw, err := codecFor[T](tx.s).Encode(v)
	if err != nil {
		return err
	}
	tx.Set(key, raw)
	return nil
}

// Lookup decodes the value at key as seen by tx.
func Lookup[T any](tx *Tx, key Key) (v T, ok bool, err error) {
	raw, ok := tx.Get(key)
	if !ok {
		return v, false, nil
	}
	v, err = codecFor[T](tx.s).Decode(raw)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Update rewrites the value at key through fn. Absent keys are left alone
// and reported with ok=false.
func Update[T any](tx *Tx, key Key, fn func(T) T) (ok bool, err error) {
	v, ok, err := Lookup[T](tx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, Put(tx, key, fn(v))
}

// UpdateAll applies fn to every valued key matched by prefix and returns how
// many were rewritten.
func UpdateAll[T any](tx *Tx, prefix Key, fn func(T) T) (int, error) {
	n := 0
	for _, k := range tx.Keys(prefix) {
		ok, err := Update(tx, k, fn)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
