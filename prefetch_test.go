package querycache

import (
	"context"
	"testing"
	"time"
)

func TestPrefetcherFiresOnlyAfterDwell(t *testing.T) {
	ft := &fakeTimers{}
	var fired []string
	p := NewPrefetcher(500*time.Millisecond, func(_ context.Context, id string) {
		fired = append(fired, id)
	}, WithAfterFunc(ft.AfterFunc))
	defer p.Close()

	p.Enter("b1")
	ft.Advance(400 * time.Millisecond)
	p.Leave("b1")
	ft.Advance(time.Second)
	if len(fired) != 0 {
		t.Fatalf("short hover prefetched: %v", fired)
	}

	p.Enter("b2")
	ft.Advance(300 * time.Millisecond)
	p.Enter("b2") // repeated signal keeps the running timer
	ft.Advance(200 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "b2" {
		t.Fatalf("fired=%v", fired)
	}
	if p.Pending("b2") {
		t.Fatalf("timer should be cleared after firing")
	}
}

func TestPrefetcherCloseStopsTimersAndCancelsContext(t *testing.T) {
	ft := &fakeTimers{}
	var got context.Context
	p := NewPrefetcher(time.Second, func(ctx context.Context, _ string) { got = ctx }, WithAfterFunc(ft.AfterFunc))

	p.Enter("b1")
	p.Close()
	ft.Advance(2 * time.Second)
	if got != nil {
		t.Fatalf("closed prefetcher fired")
	}
	p.Enter("b2")
	if p.Pending("b2") {
		t.Fatalf("Enter after Close should be ignored")
	}

	p2 := NewPrefetcher(time.Second, func(ctx context.Context, _ string) { got = ctx }, WithAfterFunc(ft.AfterFunc))
	p2.Enter("b3")
	ft.Advance(time.Second)
	p2.Close()
	if got == nil || got.Err() == nil {
		t.Fatalf("prefetch context should be cancelled by Close")
	}
}
