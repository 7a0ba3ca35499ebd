package querycache

import (
	"context"
	"strconv"
	"sync"
	"testing"
)

// pageSource serves items 0..total-1 in pages of size, cursor = start index.
type pageSource struct {
	total, size int

	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
}

func newPageSource(total, size int) *pageSource {
	return &pageSource{total: total, size: size, calls: map[string]int{}, gates: map[string]chan struct{}{}}
}

func (ps *pageSource) block(cursor string) chan struct{} {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ch := make(chan struct{})
	ps.gates[cursor] = ch
	return ch
}

func (ps *pageSource) count(cursor string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.calls[cursor]
}

func (ps *pageSource) fetch(ctx context.Context, cursor string) (Page[int], error) {
	ps.mu.Lock()
	ps.calls[cursor]++
	gate := ps.gates[cursor]
	ps.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page[int]{}, ctx.Err()
		}
	}

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	var p Page[int]
	for i := start; i < start+ps.size && i < ps.total; i++ {
		p.Items = append(p.Items, i)
	}
	if start+ps.size < ps.total {
		p.NextCursor = strconv.Itoa(start + ps.size)
	}
	return p, nil
}

func TestPagerAppendsPagesInOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	src := newPageSource(5, 2)
	p := NewPager(s, NewKey("books", "list", map[string]any{"limit": 2}), src.fetch)
	defer p.Close()

	d, err := p.Load(ctx, false)
	if err != nil || len(d.Pages) != 1 {
		t.Fatalf("pages=%d err=%v", len(d.Pages), err)
	}
	for p.HasMore() {
		ok, err := p.FetchNextPage(ctx)
		if err != nil || !ok {
			t.Fatalf("FetchNextPage ok=%v err=%v", ok, err)
		}
	}

	items := p.Items()
	want := []int{0, 1, 2, 3, 4}
	if len(items) != len(want) {
		t.Fatalf("items=%v", items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("items=%v want %v", items, want)
		}
	}
	d, _ = p.Data()
	if d.Cursors[0] != "" || d.Cursors[1] != "2" || d.Cursors[2] != "4" {
		t.Fatalf("cursors=%v", d.Cursors)
	}

	ok, err := p.FetchNextPage(ctx)
	if ok || err != nil {
		t.Fatalf("FetchNextPage past the end should be a no-op: ok=%v err=%v", ok, err)
	}
	if src.count("4") != 1 {
		t.Fatalf("last page fetched %d times", src.count("4"))
	}
}

func TestPagerConcurrentFetchNextPageDoesNotDuplicate(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	src := newPageSource(6, 2)
	p := NewPager(s, NewKey("books", "list"), src.fetch)
	defer p.Close()
	if _, err := p.Load(ctx, false); err != nil {
		t.Fatal(err)
	}

	gate := src.block("2")
	first := make(chan bool, 1)
	go func() {
		ok, _ := p.FetchNextPage(ctx)
		first <- ok
	}()
	waitFor(t, "first page request", func() bool { return p.IsFetchingMore() })

	if ok, err := p.FetchNextPage(ctx); ok || err != nil {
		t.Fatalf("second call should be a no-op while one is in flight: ok=%v err=%v", ok, err)
	}
	close(gate)
	if !<-first {
		t.Fatalf("first call should append")
	}
	if n := len(p.Items()); n != 4 {
		t.Fatalf("items=%d want 4", n)
	}
	if src.count("2") != 1 {
		t.Fatalf("page 2 fetched %d times", src.count("2"))
	}
	if p.IsFetchingMore() {
		t.Fatalf("flag should clear")
	}
}

func TestPagerRefetchReloadsAllLoadedPages(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	src := newPageSource(10, 2)
	key := NewKey("books", "list")
	p := NewPager(s, key, src.fetch)
	defer p.Close()

	if _, err := p.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.FetchNextPage(ctx); err != nil {
		t.Fatal(err)
	}
	s.Invalidate(NewKey("books"))

	d, err := p.Load(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Pages) != 2 || len(d.Items()) != 4 {
		t.Fatalf("refetch should keep both pages: %+v", d)
	}
	if src.count("") != 2 || src.count("2") != 2 {
		t.Fatalf("calls first=%d second=%d", src.count(""), src.count("2"))
	}
}

func TestPagerStopsAfterClose(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	src := newPageSource(6, 2)
	p := NewPager(s, NewKey("books", "list"), src.fetch)
	if _, err := p.Load(ctx, false); err != nil {
		t.Fatal(err)
	}

	gate := src.block("2")
	defer close(gate)
	errCh := make(chan error, 1)
	go func() {
		_, err := p.FetchNextPage(ctx)
		errCh <- err
	}()
	waitFor(t, "page request", func() bool { return p.IsFetchingMore() })

	p.Close()
	if err := <-errCh; err == nil {
		t.Fatalf("in-progress FetchNextPage should stop waiting on Close")
	}
	if ok, _ := p.FetchNextPage(ctx); ok {
		t.Fatalf("FetchNextPage after Close should be a no-op")
	}
	if _, err := p.Load(ctx, false); err != ErrClosed {
		t.Fatalf("Load after Close: %v", err)
	}
	if n := len(mustGet[InfiniteData[int]](t, s, NewKey("books", "list")).Pages); n != 1 {
		t.Fatalf("aborted page was committed: pages=%d", n)
	}
}
