package querycache

import (
	"context"
	"sync"
	"time"
)

// Page is one cursor page of a list.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// InfiniteData is the cached value of a paginated list: pages in load
// order plus the cursor each was fetched with ("" for the first).
type InfiniteData[T any] struct {
	Pages   []Page[T] `json:"pages"`
	Cursors []string  `json:"pageParams"`
}

// Items flattens the loaded pages in order.
func (d InfiniteData[T]) Items() []T {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range d.Pages {
		out = append(out, p.Items...)
	}
	return out
}

// NextCursor is the cursor of the page after the last loaded one, or "".
func (d InfiniteData[T]) NextCursor() string {
	if len(d.Pages) == 0 {
		return ""
	}
	return d.Pages[len(d.Pages)-1].NextCursor
}

// PageFunc fetches the page starting at cursor ("" = first page).
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// PagerOption configures a Pager.
type PagerOption func(*pagerConfig)

type pagerConfig struct {
	staleTime time.Duration
	gcTime    time.Duration
}

func WithPagerStaleTime(d time.Duration) PagerOption {
	return func(c *pagerConfig) { c.staleTime = d }
}

func WithPagerGCTime(d time.Duration) PagerOption {
	return func(c *pagerConfig) { c.gcTime = d }
}

// Pager accumulates cursor pages of one list under one key. The key is
// observed (and so kept from eviction) until Close.
type Pager[T any] struct {
	s     *Store
	key   Key
	fetch PageFunc[T]
	cfg   pagerConfig

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mu           sync.Mutex
	fetchingMore bool
	closed       bool
}

func NewPager[T any](s *Store, key Key, fetch PageFunc[T], opts ...PagerOption) *Pager[T] {
	var cfg pagerConfig
	for _, o := range opts {
		o(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pager[T]{
		s:      s,
		key:    key,
		fetch:  fetch,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		unsub:  s.Subscribe(key, func(Event) {}),
	}
}

func (p *Pager[T]) Key() Key { return p.key }

// Subscribe forwards store events for the list key to fn.
func (p *Pager[T]) Subscribe(fn func(Event)) func() {
	return p.s.Subscribe(p.key, fn)
}

// Load returns the cached list, loading the first page when nothing is
// cached. A stale list is returned as is while every loaded page is
// refetched in order in the background. With fresh set, Load waits for
// that refetch instead.
func (p *Pager[T]) Load(ctx context.Context, fresh bool) (InfiniteData[T], error) {
	if p.isClosed() {
		return InfiniteData[T]{}, ErrClosed
	}
	ctx, stop := p.bind(ctx)
	defer stop()
	return Fetch(ctx, p.s, Query[InfiniteData[T]]{
		Key:       p.key,
		Fn:        p.refetch,
		StaleTime: p.cfg.staleTime,
		GCTime:    p.cfg.gcTime,
		Fresh:     fresh,
	})
}

// Refresh refetches every loaded page and waits for the result.
func (p *Pager[T]) Refresh(ctx context.Context) (InfiniteData[T], error) {
	if p.isClosed() {
		return InfiniteData[T]{}, ErrClosed
	}
	ctx, stop := p.bind(ctx)
	defer stop()
	return Fetch(ctx, p.s, Query[InfiniteData[T]]{
		Key:       p.key,
		Fn:        p.refetch,
		StaleTime: p.cfg.staleTime,
		GCTime:    p.cfg.gcTime,
		Force:     true,
	})
}

// refetch reloads as many pages as are cached, starting from the first and
// following fresh cursors, so the list never holds pages from two different
// server states.
func (p *Pager[T]) refetch(ctx context.Context) (InfiniteData[T], error) {
	want := 1
	if cur, ok, _ := GetQueryData[InfiniteData[T]](p.s, p.key); ok && len(cur.Pages) > 0 {
		want = len(cur.Pages)
	}
	var out InfiniteData[T]
	cursor := ""
	for i := 0; i < want; i++ {
		page, err := p.fetch(ctx, cursor)
		if err != nil {
			return InfiniteData[T]{}, err
		}
		out.Pages = append(out.Pages, page)
		out.Cursors = append(out.Cursors, cursor)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

// FetchNextPage appends the next page. It is a no-op when there is no next
// cursor, when a read for the list is already in flight, or after Close.
// It reports whether a page was appended.
func (p *Pager[T]) FetchNextPage(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed || p.fetchingMore {
		p.mu.Unlock()
		return false, nil
	}
	cur, ok, err := GetQueryData[InfiniteData[T]](p.s, p.key)
	if err != nil || !ok || cur.NextCursor() == "" || p.s.InFlight(p.key) {
		p.mu.Unlock()
		return false, err
	}
	p.fetchingMore = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.fetchingMore = false
		p.mu.Unlock()
	}()

	cursor := cur.NextCursor()
	appended := false
	ctx, stop := p.bind(ctx)
	defer stop()
	_, err = Fetch(ctx, p.s, Query[InfiniteData[T]]{
		Key:       p.key,
		StaleTime: p.cfg.staleTime,
		GCTime:    p.cfg.gcTime,
		Force:     true,
		Fn: func(ctx context.Context) (InfiniteData[T], error) {
			page, err := p.fetch(ctx, cursor)
			if err != nil {
				return InfiniteData[T]{}, err
			}
			// re-read at resolve time; a write in between fails the commit anyway
			latest, ok, err := GetQueryData[InfiniteData[T]](p.s, p.key)
			if err != nil {
				return InfiniteData[T]{}, err
			}
			if !ok || latest.NextCursor() != cursor {
				return latest, nil
			}
			latest.Pages = append(latest.Pages, page)
			latest.Cursors = append(latest.Cursors, cursor)
			appended = true
			return latest, nil
		},
	})
	if err != nil {
		return false, err
	}
	return appended, nil
}

// HasMore reports whether the cached list has a next cursor.
func (p *Pager[T]) HasMore() bool {
	cur, ok, err := GetQueryData[InfiniteData[T]](p.s, p.key)
	return err == nil && ok && cur.NextCursor() != ""
}

func (p *Pager[T]) IsFetchingMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchingMore
}

// Data returns the cached list without fetching.
func (p *Pager[T]) Data() (InfiniteData[T], bool) {
	cur, ok, err := GetQueryData[InfiniteData[T]](p.s, p.key)
	if err != nil {
		return InfiniteData[T]{}, false
	}
	return cur, ok
}

// Items flattens the cached pages.
func (p *Pager[T]) Items() []T {
	cur, _ := p.Data()
	return cur.Items()
}

// Close stops the pager from acting on its key: calls in progress stop
// waiting and later calls are no-ops. The cached list stays in the store.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.unsub()
}

func (p *Pager[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// bind ties ctx to the pager's lifetime.
func (p *Pager[T]) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
