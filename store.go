package querycache

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/internal/wire"
	"github.com/unkn0wn-root/querycache/provider"
)

// EventKind says what happened to a key.
type EventKind uint8

const (
	EventUpdated     EventKind = iota + 1 // a new value was committed
	EventInvalidated                      // the value was marked stale
	EventError                            // a read failed
	EventRemoved                          // the entry was removed or evicted
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventError:
		return "error"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers of Key and of every prefix of Key.
type Event struct {
	Key  Key
	Kind EventKind
}

type subscription struct {
	key Key
	fn  func(Event)
}

// Store is the single source of truth for cached server data. All methods
// are safe for concurrent use.
//
// One mutex guards entries, the in-flight read registry and subscriptions.
// Subscriber callbacks always run after the mutex is released, once every
// write of a batch is visible.
type Store struct {
	ns             string
	provider       provider.Provider
	gen            genstore.GenStore
	ownsGen        bool
	codecKind      codec.Kind
	maxDecode      int
	staleTime      time.Duration
	gcTime         time.Duration
	computeSetCost SetCostFunc
	log            Logger
	hooks          Hooks
	now            func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry    // by storage key
	reads     map[string]*readCall // by storage key
	flight    singleflight.Group
	observers map[string]int       // exact-key subscribers by storage key
	subs      map[uint64]*subscription
	nextSub   uint64
	mutations map[string]*PendingMutation
	closed    bool

	sweepTicker *time.Ticker
	stopCh      chan struct{}
	bg          sync.WaitGroup
	closeOnce   sync.Once
}

func (s *Store) storageKey(k Key) string {
	return s.ns + ":" + k.ID()
}

// Get returns a copy of the entry at key. A value the provider lost is
// reported as absent and the entry is marked stale.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := s.storageKey(key)
	e, ok := s.entries[sk]
	if !ok {
		return Entry{}, false
	}
	raw, _ := s.loadLocked(e)
	_, fetching := s.reads[sk]
	return e.snapshot(raw, fetching), true
}

// Set writes an encoded value, resetting its freshness timestamps.
// Any read in flight for key that started earlier will not overwrite it.
func (s *Store) Set(key Key, raw []byte) error {
	return s.Batch(func(tx *Tx) error {
		tx.Set(key, raw)
		return nil
	})
}

// Invalidate marks every entry matched by prefix stale without dropping
// its value, and returns how many entries matched. Invalidation alone does
// not start a refetch; readers do. A read already in flight for a matched
// key still commits its value, but the entry stays stale so the next read
// refetches.
func (s *Store) Invalidate(prefix Key) int {
	s.mu.Lock()
	evs := s.invalidateLocked(prefix)
	s.mu.Unlock()
	s.dispatch(evs)
	return len(evs)
}

// CancelInFlight aborts every read in flight for keys matched by prefix.
// Waiting callers get ErrCanceled; late results are discarded.
func (s *Store) CancelInFlight(prefix Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(prefix)
}

// Remove drops entries matched by prefix, values included. Entries with a
// read in flight or pinned by a pending mutation are skipped.
func (s *Store) Remove(prefix Key) int {
	s.mu.Lock()
	var evs []Event
	for sk, e := range s.entries {
		if !e.key.HasPrefix(prefix) || e.pins > 0 || s.reads[sk] != nil {
			continue
		}
		s.dropLocked(sk, e)
		evs = append(evs, Event{Key: e.key, Kind: EventRemoved})
	}
	s.mu.Unlock()
	s.dispatch(evs)
	return len(evs)
}

// Subscribe registers fn for events on key and on every key key is a
// prefix of. An exact-key subscriber also keeps its entry from being
// evicted. Call the returned function to unsubscribe.
func (s *Store) Subscribe(key Key, fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = &subscription{key: key, fn: fn}
	sk := s.storageKey(key)
	s.observers[sk]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			if s.observers[sk]--; s.observers[sk] <= 0 {
				delete(s.observers, sk)
				if e, ok := s.entries[sk]; ok {
					// eviction countdown restarts once nobody observes the entry
					e.evictAfter = s.now().Add(e.gcTime)
				}
			}
			s.mu.Unlock()
		})
	}
}

// Sweep evicts entries past their eviction time that nobody observes,
// reads or pins. It runs periodically unless the sweep was disabled.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	var evs []Event
	for sk, e := range s.entries {
		if now.Before(e.evictAfter) || s.observers[sk] > 0 || e.pins > 0 || s.reads[sk] != nil {
			continue
		}
		s.dropLocked(sk, e)
		evs = append(evs, Event{Key: e.key, Kind: EventRemoved})
	}
	s.mu.Unlock()

	if len(evs) > 0 {
		s.hooks.EntriesEvicted(len(evs))
		s.log.Debug("evicted unobserved entries", Fields{"count": len(evs)})
	}
	s.dispatch(evs)
	return len(evs)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// InFlight reports whether a read is in flight for exactly key.
func (s *Store) InFlight(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reads[s.storageKey(key)]
	return ok
}

// Keys returns the keys matched by prefix that currently hold a value,
// ordered by their canonical ID.
func (s *Store) Keys(prefix Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(prefix)
}

func (s *Store) keysLocked(prefix Key) []Key {
	var out []Key
	for _, sk := range s.sortedKeysLocked() {
		e := s.entries[sk]
		if e.hasValue && e.key.HasPrefix(prefix) {
			out = append(out, e.key)
		}
	}
	return out
}

func (s *Store) sortedKeysLocked() []string {
	sks := make([]string, 0, len(s.entries))
	for sk := range s.entries {
		sks = append(sks, sk)
	}
	sort.Strings(sks)
	return sks
}

func (s *Store) newEntryLocked(key Key, staleTime, gcTime time.Duration, now time.Time) *entry {
	e := &entry{
		key:       key,
		sk:        s.storageKey(key),
		status:    StatusPending,
		staleTime: coalesce(staleTime, s.staleTime),
		gcTime:    coalesce(gcTime, s.gcTime),
	}
	e.evictAfter = now.Add(e.gcTime)
	s.entries[e.sk] = e
	return e
}

func (s *Store) entryLocked(key Key, now time.Time) *entry {
	if e, ok := s.entries[s.storageKey(key)]; ok {
		return e
	}
	return s.newEntryLocked(key, 0, 0, now)
}

// loadLocked returns a private copy of e's committed value. A provider that
// lost or garbled the value heals the entry: no value, marked stale.
func (s *Store) loadLocked(e *entry) ([]byte, bool) {
	if !e.hasValue {
		return nil, false
	}
	b, ok, err := s.provider.Get(context.Background(), e.sk)
	var reason string
	switch {
	case err != nil:
		reason = "provider_error"
	case !ok:
		reason = "missing"
	default:
		g, payload, derr := wire.DecodeSingle(b)
		switch {
		case derr != nil:
			reason = "corrupt"
		case g != e.valueGen:
			reason = "gen_mismatch"
		default:
			return bytes.Clone(payload), true
		}
	}

	e.hasValue = false
	e.invalidated = true
	if reason == "corrupt" || reason == "gen_mismatch" {
		_ = s.provider.Del(context.Background(), e.sk)
	}
	s.hooks.SelfHeal(e.sk, reason)
	s.log.Warn("cached value lost; entry marked stale", Fields{
		"key":    e.key.String(),
		"reason": reason,
		"err":    err,
	})
	return nil, false
}

// writeLocked commits raw to e and bumps its generation so reads that
// started earlier cannot overwrite it.
func (s *Store) writeLocked(e *entry, raw []byte, now time.Time) Event {
	g := s.bumpLocked(e.sk)
	if g <= e.valueGen {
		g = e.valueGen + 1
	}
	frame := wire.EncodeSingle(g, raw)

	e.status = StatusSuccess
	e.err = nil
	e.fetchedAt = now
	e.staleAfter = now.Add(e.staleTime)
	e.evictAfter = now.Add(e.gcTime)
	e.invalidated = false

	ok, err := s.provider.Set(context.Background(), e.sk, frame, s.computeSetCost(e.sk, frame), 0)
	if err != nil || !ok {
		e.hasValue = false
		e.invalidated = true
		s.hooks.ProviderSetRejected(e.sk)
		s.log.Warn("provider rejected write", Fields{"key": e.key.String(), "err": err})
		return Event{Key: e.key, Kind: EventInvalidated}
	}
	e.hasValue = true
	e.valueGen = g
	return Event{Key: e.key, Kind: EventUpdated}
}

func (s *Store) invalidateLocked(prefix Key) []Event {
	var evs []Event
	for _, sk := range s.sortedKeysLocked() {
		e := s.entries[sk]
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		if call := s.reads[sk]; call != nil {
			call.invalidated = true
		}
		evs = append(evs, Event{Key: e.key, Kind: EventInvalidated})
	}
	return evs
}

func (s *Store) cancelLocked(prefix Key) int {
	n := 0
	for _, call := range s.reads {
		if call.key.HasPrefix(prefix) {
			s.abortLocked(call, ErrCanceled)
			n++
		}
	}
	if n > 0 {
		s.log.Debug("cancelled reads in flight", Fields{"prefix": prefix.String(), "count": n})
	}
	return n
}

func (s *Store) dropLocked(sk string, e *entry) {
	delete(s.entries, sk)
	if e.hasValue {
		_ = s.provider.Del(context.Background(), sk)
	}
}

func (s *Store) snapshotGenLocked(sk string) (uint64, bool) {
	g, err := s.gen.Snapshot(context.Background(), sk)
	if err != nil {
		s.hooks.GenStoreError("snapshot", err)
		return 0, false
	}
	return g, true
}

func (s *Store) bumpLocked(sk string) uint64 {
	g, err := s.gen.Bump(context.Background(), sk)
	if err != nil {
		s.hooks.GenStoreError("bump", err)
		s.log.Error("generation bump failed", Fields{"key": sk, "err": err})
		return 0
	}
	return g
}

// dispatch delivers events outside the lock, in order.
func (s *Store) dispatch(evs []Event) {
	if len(evs) == 0 {
		return
	}
	type delivery struct {
		fn func(Event)
		ev Event
	}
	var out []delivery
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, ev := range evs {
		for _, id := range ids {
			sub := s.subs[id]
			if ev.Key.HasPrefix(sub.key) {
				out = append(out, delivery{fn: sub.fn, ev: ev})
			}
		}
	}
	s.mu.Unlock()

	for _, d := range out {
		d.fn(d.ev)
	}
}
