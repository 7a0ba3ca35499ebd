package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestSetIsVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	ok, err := p.Set(ctx, "k", []byte("payload"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Skip("write dropped by admission policy")
	}
	got, hit, err := p.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("Get hit=%v err=%v", hit, err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("got %q", got)
	}

	_ = p.Del(ctx, "k")
	if _, hit, _ := p.Get(ctx, "k"); hit {
		t.Fatalf("expected miss after Del")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}
