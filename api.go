package querycache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/local"
)

// SetCostFunc returns the provider cost of a framed value.
type SetCostFunc func(storageKey string, frame []byte) int64

type Options struct {
	// Namespace prefixes provider keys ("<ns>:<key id>"). Default "qc".
	Namespace string

	// Provider holds encoded values. Default: provider/local.
	// A provider that evicts on its own is fine; lost values are refetched.
	Provider provider.Provider

	// GenStore holds per-key generations. Default: an in-process
	// genstore.LocalGenStore owned (and closed) by the Store.
	GenStore genstore.GenStore

	// Codec selects the default codec family for typed helpers. Default JSON.
	Codec codec.Kind
	// MaxDecode rejects encoded values larger than this many bytes when they
	// are decoded, for the default codec and Query.Codec alike. 0 disables.
	MaxDecode int

	// StaleTime is how long a committed value counts as fresh. Default 5m.
	StaleTime time.Duration
	// GCTime is how long an unobserved entry is kept. Default 10m.
	GCTime time.Duration

	// SweepInterval is the eviction sweep period. Default 1m; negative
	// disables the background sweep (call Store.Sweep manually).
	SweepInterval time.Duration
	// GenRetention prunes idle generation counters of the default GenStore.
	GenRetention time.Duration

	ComputeSetCost SetCostFunc

	Logger Logger
	Hooks  Hooks

	// Now is the clock used for staleness and eviction. Default time.Now.
	Now func() time.Time
}

// New builds a Store and starts its sweep loop.
func New(opts Options) (*Store, error) {
	ns := coalesce(strings.TrimSpace(opts.Namespace), DefaultNamespace)
	if strings.Contains(ns, ":") {
		return nil, fmt.Errorf("querycache: namespace %q must not contain ':'", ns)
	}
	kind, err := codec.ParseKind(string(opts.Codec))
	if err != nil {
		return nil, err
	}
	if opts.StaleTime < 0 || opts.GCTime < 0 {
		return nil, fmt.Errorf("querycache: negative StaleTime/GCTime")
	}
	if opts.MaxDecode < 0 {
		return nil, fmt.Errorf("querycache: negative MaxDecode")
	}

	s := &Store{
		ns:        ns,
		codecKind: kind,
		maxDecode: opts.MaxDecode,
		staleTime: coalesce(opts.StaleTime, DefaultStaleTime),
		gcTime:    coalesce(opts.GCTime, DefaultGCTime),
		entries:   make(map[string]*entry),
		reads:     make(map[string]*readCall),
		observers: make(map[string]int),
		subs:      make(map[uint64]*subscription),
		mutations: make(map[string]*PendingMutation),
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.log = opts.Logger
	if s.log == nil {
		s.log = NopLogger{}
	}
	s.hooks = opts.Hooks
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}
	s.computeSetCost = opts.ComputeSetCost
	if s.computeSetCost == nil {
		s.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	s.provider = opts.Provider
	if s.provider == nil {
		s.provider = local.New()
	}
	s.gen = opts.GenStore
	if s.gen == nil {
		retention := coalesce(opts.GenRetention, DefaultGenRetention)
		s.gen = genstore.NewLocalGenStore(time.Hour, retention)
		s.ownsGen = true
	}

	interval := coalesce(opts.SweepInterval, DefaultSweepInterval)
	if interval > 0 {
		s.stopCh = make(chan struct{})
		s.sweepTicker = time.NewTicker(interval)
		s.bg.Add(1)
		go s.sweepLoop()
	}

	s.log.Debug("store started", Fields{
		"ns":         ns,
		"codec":      string(kind),
		"stale_time": s.staleTime.String(),
		"gc_time":    s.gcTime.String(),
	})
	return s, nil
}

func (s *Store) sweepLoop() {
	defer s.bg.Done()
	for {
		select {
		case <-s.sweepTicker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Close cancels every read in flight, stops the sweep and releases the
// provider. It waits for read goroutines until ctx is done.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for _, call := range s.reads {
			s.abortLocked(call, ErrClosed)
		}
		s.mu.Unlock()

		if s.stopCh != nil {
			s.sweepTicker.Stop()
			close(s.stopCh)
		}

		done := make(chan struct{})
		go func() {
			s.bg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		if s.ownsGen {
			_ = s.gen.Close(ctx)
		}
		if perr := s.provider.Close(ctx); perr != nil && err == nil {
			err = perr
		}
	})
	return err
}

// codecFor returns the store's default codec for T.
func codecFor[T any](s *Store) codec.Codec[T] {
	return limitCodec(s, codec.For[T](s.codecKind))
}

// limitCodec applies the store's decode limit to c.
func limitCodec[T any](s *Store, c codec.Codec[T]) codec.Codec[T] {
	if s.maxDecode <= 0 {
		return c
	}
	return codec.Limit[T]{Inner: c, MaxDecode: s.maxDecode}
}
