package querycache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/querycache/codec"
)

// Query describes a cached read.
type Query[T any] struct {
	Key Key
	Fn  func(ctx context.Context) (T, error)

	// Codec overrides the store's default codec for T.
	Codec codec.Codec[T]

	// StaleTime and GCTime override the store defaults for this key.
	StaleTime time.Duration
	GCTime    time.Duration

	// Fresh waits for a refetch instead of serving a stale value.
	Fresh bool
	// Force refetches even when the cached value is fresh.
	Force bool
}

func (q Query[T]) codec(s *Store) codec.Codec[T] {
	if q.Codec != nil {
		return limitCodec(s, q.Codec)
	}
	return codecFor[T](s)
}

type readMode uint8

const (
	// serve fresh or stale values; stale ones are revalidated in the background
	readCached readMode = iota
	// serve fresh values only; otherwise wait for a read
	readFresh
	// always wait for a read
	readForce
)

func (q Query[T]) mode() readMode {
	switch {
	case q.Force:
		return readForce
	case q.Fresh:
		return readFresh
	default:
		return readCached
	}
}

// Fetch returns the value at q.Key, reading through q.Fn when needed.
//
// A fresh value is returned without calling Fn. A stale value is returned
// immediately while a background read refreshes it. With no value, the
// caller waits for a read. Concurrent callers for one key share one call
// to Fn. A caller whose ctx ends stops waiting; when the last waiter is
// gone the call is cancelled and its result ignored.
//
// A failed read leaves the previous value in place and returns Fn's error.
func Fetch[T any](ctx context.Context, s *Store, q Query[T]) (T, error) {
	var zero T
	c := q.codec(s)
	fn := func(ctx context.Context) ([]byte, error) {
		v, err := q.Fn(ctx)
		if err != nil {
			return nil, err
		}
		return c.Encode(v)
	}
	raw, err := s.read(ctx, q.Key, q.mode(), q.StaleTime, q.GCTime, fn)
	if err != nil {
		return zero, err
	}
	return c.Decode(raw)
}

// Prefetch warms q.Key: it is a no-op when the value is fresh and otherwise
// waits for a read. The value is not returned.
func Prefetch[T any](ctx context.Context, s *Store, q Query[T]) error {
	q.Fresh = true
	_, err := Fetch(ctx, s, q)
	return err
}

// GetQueryData decodes the value at key. ok is false when there is none.
func GetQueryData[T any](s *Store, key Key) (v T, ok bool, err error) {
	e, found := s.Get(key)
	if !found || !e.HasValue {
		return v, false, nil
	}
	v, err = codecFor[T](s).Decode(e.Value)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// SetQueryData encodes v and writes it at key.
func SetQueryData[T any](s *Store, key Key, v T) error {
	raw, err := codecFor[T](s).Encode(v)
	if err != nil {
		return err
	}
	return s.Set(key, raw)
}

type readCall struct {
	key        Key
	sk         string
	gen        uint64 // generation observed when the read started
	genOK      bool
	background bool
	cancel     context.CancelFunc
	done       chan struct{}

	// guarded by Store.mu until done is closed
	waiters     int
	finished    bool
	invalidated bool // the key was invalidated while the read was out
	raw         []byte
	err         error
}

func (s *Store) read(ctx context.Context, key Key, mode readMode, staleTime, gcTime time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	now := s.now()
	sk := s.storageKey(key)
	e, ok := s.entries[sk]
	if !ok {
		e = s.newEntryLocked(key, staleTime, gcTime, now)
	} else {
		if staleTime > 0 {
			e.staleTime = staleTime
		}
		if gcTime > 0 {
			e.gcTime = gcTime
		}
	}

	if mode != readForce {
		stale := e.stale(now)
		if raw, ok := s.loadLocked(e); ok {
			if !stale {
				s.mu.Unlock()
				return raw, nil
			}
			if mode == readCached {
				if _, inflight := s.reads[sk]; !inflight {
					s.startReadLocked(e, fn, true)
				}
				s.mu.Unlock()
				return raw, nil
			}
		}
	}

	call, ok := s.reads[sk]
	if ok {
		call.waiters++
		s.mu.Unlock()
		s.hooks.ReadDeduplicated(key.String())
	} else {
		call = s.startReadLocked(e, fn, false)
		s.mu.Unlock()
	}
	return s.await(ctx, call)
}

func (s *Store) startReadLocked(e *entry, fn func(context.Context) ([]byte, error), background bool) *readCall {
	g, ok := s.snapshotGenLocked(e.sk)
	ctx, cancel := context.WithCancel(context.Background())
	call := &readCall{
		key:        e.key,
		sk:         e.sk,
		gen:        g,
		genOK:      ok,
		background: background,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if !background {
		call.waiters = 1
	}
	s.reads[e.sk] = call
	s.bg.Add(1)
	// the registry above decides who shares a call; flight runs it, and is
	// told to Forget the key whenever the registry drops it
	s.flight.DoChan(e.sk, func() (any, error) {
		s.runRead(ctx, call, fn)
		return nil, nil
	})
	return call
}

func (s *Store) runRead(ctx context.Context, call *readCall, fn func(context.Context) ([]byte, error)) {
	defer s.bg.Done()
	raw, err := fn(ctx)

	s.mu.Lock()
	if call.finished {
		// aborted while the remote call was running
		reason := "canceled"
		if call.err == ErrClosed {
			reason = "closed"
		}
		s.mu.Unlock()
		s.discarded(call, reason)
		return
	}
	call.finished = true
	call.cancel()
	s.unregisterLocked(call)
	call.raw, call.err = raw, err

	var evs []Event
	cur, ok := s.snapshotGenLocked(call.sk)
	superseded := !ok || !call.genOK || cur != call.gen
	e, exists := s.entries[call.sk]
	switch {
	case superseded || !exists:
		// a newer write (or removal) landed while this read was out
	case err != nil:
		e.status = StatusError
		e.err = err
		evs = append(evs, Event{Key: e.key, Kind: EventError})
	default:
		ev := s.writeLocked(e, raw, s.now())
		if call.invalidated && e.hasValue {
			e.invalidated = true
		}
		evs = append(evs, ev)
	}
	close(call.done)
	s.mu.Unlock()

	if superseded {
		s.discarded(call, "superseded")
	} else if err != nil {
		s.log.Debug("read failed", Fields{"key": call.key.String(), "err": err})
	}
	s.dispatch(evs)
}

func (s *Store) discarded(call *readCall, reason string) {
	s.hooks.StaleResponseDiscarded(call.key.String(), reason)
	s.log.Debug("stale response discarded", Fields{"key": call.key.String(), "reason": reason})
}

func (s *Store) await(ctx context.Context, call *readCall) ([]byte, error) {
	select {
	case <-call.done:
		return call.raw, call.err
	case <-ctx.Done():
		s.detach(call)
		return nil, ctx.Err()
	}
}

func (s *Store) detach(call *readCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call.waiters--
	if call.waiters <= 0 && !call.finished && !call.background {
		s.abortLocked(call, ErrCanceled)
	}
}

// abortLocked finishes call with err and bumps the key's generation, so a
// result that still arrives cannot be committed.
func (s *Store) abortLocked(call *readCall, err error) {
	if call.finished {
		return
	}
	call.finished = true
	call.err = err
	call.cancel()
	s.unregisterLocked(call)
	s.bumpLocked(call.sk)
	close(call.done)
}

// unregisterLocked drops call from the registry. The next read of the key
// starts a new call even while this one is still returning.
func (s *Store) unregisterLocked(call *readCall) {
	if s.reads[call.sk] == call {
		delete(s.reads, call.sk)
		s.flight.Forget(call.sk)
	}
}
