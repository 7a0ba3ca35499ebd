package querycache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	dedup     int
	discarded []string
	selfHeals []string
	rollbacks int
	missing   []string
	evicted   int
}

func (h *recHooks) ReadDeduplicated(string) {
	h.mu.Lock()
	h.dedup++
	h.mu.Unlock()
}

func (h *recHooks) StaleResponseDiscarded(_, reason string) {
	h.mu.Lock()
	h.discarded = append(h.discarded, reason)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, reason)
	h.mu.Unlock()
}

func (h *recHooks) RollbackApplied(string, int) {
	h.mu.Lock()
	h.rollbacks++
	h.mu.Unlock()
}

func (h *recHooks) SnapshotMissing(_, key string) {
	h.mu.Lock()
	h.missing = append(h.missing, key)
	h.mu.Unlock()
}

func (h *recHooks) EntriesEvicted(n int) {
	h.mu.Lock()
	h.evicted += n
	h.mu.Unlock()
}

func (h *recHooks) dedupCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dedup
}

func (h *recHooks) discardedReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.discarded...)
}

func newTestStore(t *testing.T, mutate ...func(*Options)) (*Store, *testClock, *recHooks) {
	t.Helper()
	clk := newTestClock()
	hooks := &recHooks{}
	opts := Options{
		Now:           clk.Now,
		Hooks:         hooks,
		SweepInterval: -1,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, clk, hooks
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustSet[T any](t *testing.T, s *Store, k Key, v T) {
	t.Helper()
	if err := SetQueryData(s, k, v); err != nil {
		t.Fatalf("SetQueryData(%s): %v", k, err)
	}
}

func mustGet[T any](t *testing.T, s *Store, k Key) T {
	t.Helper()
	v, ok, err := GetQueryData[T](s, k)
	if err != nil || !ok {
		t.Fatalf("GetQueryData(%s): ok=%v err=%v", k, ok, err)
	}
	return v
}

// fakeTimers is a manual clock for Debouncer and Prefetcher.
type fakeTimers struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	ft      *fakeTimers
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{ft: ft, at: ft.now + d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.ft.mu.Lock()
	defer t.ft.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks in order, synchronously.
func (ft *fakeTimers) Advance(d time.Duration) {
	ft.mu.Lock()
	ft.now += d
	var due []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired && t.at <= ft.now {
			t.fired = true
			due = append(due, t)
		}
	}
	ft.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}
