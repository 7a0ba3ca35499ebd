package querycache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/querycache/internal/wire"
)

type testCart struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

var errServer = errors.New("server said no")

func clearCartMutation(s *Store, k Key, fail bool, seen *testCart) Mutation[struct{}, testCart] {
	return Mutation[struct{}, testCart]{
		Name: "clearCart",
		Keys: func(struct{}) []Key { return []Key{k} },
		Optimistic: func(tx *Tx, _ struct{}) error {
			return Put(tx, k, testCart{Items: []string{}})
		},
		Call: func(context.Context, struct{}) (testCart, error) {
			if seen != nil {
				*seen, _, _ = GetQueryData[testCart](s, k)
			}
			if fail {
				return testCart{}, errServer
			}
			return testCart{Items: []string{}}, nil
		},
	}
}

func TestOptimisticUpdateVisibleBeforeCall(t *testing.T) {
	s, _, _ := newTestStore(t)
	k := NewKey("cart")
	mustSet(t, s, k, testCart{Items: []string{"b1"}, Total: 10})

	var seen testCart
	if _, err := Mutate(context.Background(), s, clearCartMutation(s, k, false, &seen), struct{}{}); err != nil {
		t.Fatal(err)
	}
	if len(seen.Items) != 0 {
		t.Fatalf("Call observed %+v, want the optimistic empty cart", seen)
	}
}

func TestFailedMutationRestoresSnapshotExactly(t *testing.T) {
	s, clk, hooks := newTestStore(t)
	k := NewKey("cart")
	mustSet(t, s, k, testCart{Items: []string{"b1", "b2"}, Total: 25})
	before, _ := s.Get(k)

	_, err := Mutate(context.Background(), s, clearCartMutation(s, k, true, nil), struct{}{})

	var merr *MutationError
	if !errors.As(err, &merr) || !errors.Is(err, errServer) {
		t.Fatalf("err=%v", err)
	}
	if merr.RolledBack != 1 || len(merr.Unrestored) != 0 {
		t.Fatalf("rolledBack=%d unrestored=%v", merr.RolledBack, merr.Unrestored)
	}
	after, _ := s.Get(k)
	if !bytes.Equal(before.Value, after.Value) {
		t.Fatalf("rollback not exact:\n before=%s\n after=%s", before.Value, after.Value)
	}
	if !after.Stale(clk.Now()) {
		t.Fatalf("settle should invalidate the restored entry")
	}
	if hooks.rollbacks != 1 {
		t.Fatalf("rollback hook calls=%d", hooks.rollbacks)
	}
	if len(s.PendingMutations()) != 0 {
		t.Fatalf("record not released")
	}
}

func TestSuccessfulMutationCommitsAndInvalidates(t *testing.T) {
	s, clk, _ := newTestStore(t)
	k := NewKey("cart")
	mustSet(t, s, k, testCart{Items: []string{"b1"}, Total: 10})

	m := Mutation[string, testCart]{
		Name: "addToCart",
		Keys: func(string) []Key { return []Key{k} },
		Call: func(_ context.Context, id string) (testCart, error) {
			return testCart{Items: []string{"b1", id}, Total: 20}, nil
		},
		Commit: func(tx *Tx, _ string, res testCart) error { return Put(tx, k, res) },
	}
	res, err := Mutate(context.Background(), s, m, "b2")
	if err != nil || len(res.Items) != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	got := mustGet[testCart](t, s, k)
	if got.Total != 20 {
		t.Fatalf("server response not committed: %+v", got)
	}
	if e, _ := s.Get(k); !e.Stale(clk.Now()) {
		t.Fatalf("settled key should be invalidated")
	}
}

func TestOptimisticWriteWithoutSnapshotIsMarkedStale(t *testing.T) {
	s, clk, hooks := newTestStore(t)
	k := NewKey("books", "detail", "b1")

	m := Mutation[struct{}, struct{}]{
		Name:       "toggleFavorite",
		Keys:       func(struct{}) []Key { return []Key{NewKey("books")} },
		Optimistic: func(tx *Tx, _ struct{}) error { return Put(tx, k, "guess") },
		Call: func(context.Context, struct{}) (struct{}, error) {
			return struct{}{}, errServer
		},
	}
	_, err := Mutate(context.Background(), s, m, struct{}{})
	if !errors.Is(err, ErrSnapshotMissing) {
		t.Fatalf("err=%v, want ErrSnapshotMissing in chain", err)
	}
	var merr *MutationError
	if !errors.As(err, &merr) || len(merr.Unrestored) != 1 || !merr.Unrestored[0].Equal(k) {
		t.Fatalf("unrestored=%v", merr)
	}
	e, _ := s.Get(k)
	if !e.Stale(clk.Now()) {
		t.Fatalf("unrestorable key must be left stale")
	}
	if len(hooks.missing) != 1 {
		t.Fatalf("snapshot-missing hook calls=%d", len(hooks.missing))
	}
}

func TestMutationCancelsReadsInFlight(t *testing.T) {
	s, _, hooks := newTestStore(t)
	list := NewKey("books", "list", map[string]any{"limit": 20})
	mustSet(t, s, list, "server-v1")
	s.Invalidate(list)

	gate := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := Fetch(context.Background(), s, Query[string]{
			Key:   list,
			Fresh: true,
			Fn: func(context.Context) (string, error) {
				<-gate
				return "server-v1-late", nil
			},
		})
		errCh <- err
	}()
	waitFor(t, "read to start", func() bool { return s.InFlight(list) })

	m := Mutation[struct{}, struct{}]{
		Name:       "toggleFavorite",
		Keys:       func(struct{}) []Key { return []Key{NewKey("books", "list")} },
		Optimistic: func(tx *Tx, _ struct{}) error { return Put(tx, list, "optimistic") },
		Call: func(context.Context, struct{}) (struct{}, error) {
			close(gate)
			return struct{}{}, nil
		},
	}
	if _, err := Mutate(context.Background(), s, m, struct{}{}); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; !errors.Is(err, ErrCanceled) {
		t.Fatalf("reader err=%v", err)
	}
	waitFor(t, "late response to be discarded", func() bool { return len(hooks.discardedReasons()) == 1 })
	if got := mustGet[string](t, s, list); got != "optimistic" {
		t.Fatalf("late read overwrote optimistic value: %q", got)
	}
}

func TestPendingMutationVisibleDuringCall(t *testing.T) {
	s, _, _ := newTestStore(t)
	var during []MutationInfo
	m := Mutation[int, int]{
		Name: "addToCart",
		Keys: func(int) []Key { return []Key{NewKey("cart")} },
		Call: func(_ context.Context, n int) (int, error) {
			during = s.PendingMutations()
			return n, nil
		},
	}
	if _, err := Mutate(context.Background(), s, m, 1); err != nil {
		t.Fatal(err)
	}
	if len(during) != 1 || during[0].Name != "addToCart" || during[0].State != MutationBegun || during[0].ID == "" {
		t.Fatalf("during=%+v", during)
	}
}

func TestPinnedEntriesSurviveSweep(t *testing.T) {
	s, clk, _ := newTestStore(t)
	k := NewKey("cart")
	mustSet(t, s, k, testCart{Items: []string{"b1"}})

	m := Mutation[struct{}, struct{}]{
		Name: "clearCart",
		Keys: func(struct{}) []Key { return []Key{k} },
		Call: func(context.Context, struct{}) (struct{}, error) {
			clk.Advance(DefaultGCTime * 2)
			if n := s.Sweep(); n != 0 {
				t.Errorf("swept %d pinned entries", n)
			}
			return struct{}{}, nil
		},
	}
	if _, err := Mutate(context.Background(), s, m, struct{}{}); err != nil {
		t.Fatal(err)
	}
	if s.Sweep() != 1 {
		t.Fatalf("entry should be evictable once settled")
	}
}

func TestSnapshotCarriesGenerationsAfterCancel(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	k := NewKey("cart")
	mustSet(t, s, k, testCart{Items: []string{"b1"}, Total: 10})
	s.Invalidate(k)

	gate := make(chan struct{})
	defer close(gate)
	go func() {
		_, _ = Fetch(ctx, s, Query[testCart]{
			Key:   k,
			Fresh: true,
			Fn: func(context.Context) (testCart, error) {
				<-gate
				return testCart{}, nil
			},
		})
	}()
	waitFor(t, "read to start", func() bool { return s.InFlight(k) })

	var items []wire.BulkItem
	var current uint64
	m := clearCartMutation(s, k, false, nil)
	m.Call = func(context.Context, struct{}) (testCart, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, rec := range s.mutations {
			var err error
			if items, err = wire.DecodeBulk(rec.snapshot); err != nil {
				t.Errorf("snapshot: %v", err)
			}
		}
		current, _ = s.gen.Snapshot(ctx, s.storageKey(k))
		return testCart{Items: []string{}}, nil
	}
	if _, err := Mutate(ctx, s, m, struct{}{}); err != nil {
		t.Fatal(err)
	}

	// write=1, cancelled read=2, optimistic write=3
	if len(items) != 1 || items[0].Key != "qc:"+k.ID() || items[0].Gen != 2 {
		t.Fatalf("snapshot items=%+v", items)
	}
	if current != 3 {
		t.Fatalf("generation during call=%d, want 3", current)
	}
}
