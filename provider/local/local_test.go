package local

import (
	"bytes"
	"context"
	"testing"
)

func TestSetCopiesValue(t *testing.T) {
	ctx := context.Background()
	p := New()
	buf := []byte("abc")
	if ok, err := p.Set(ctx, "k", buf, 1, 0); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	buf[0] = 'X'

	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("got %q, want abc", got)
	}
}

func TestDelAndClose(t *testing.T) {
	ctx := context.Background()
	p := New()
	_, _ = p.Set(ctx, "a", []byte("1"), 1, 0)
	_, _ = p.Set(ctx, "b", []byte("2"), 1, 0)

	if err := p.Del(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del on missing key: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len=%d want 1", p.Len())
	}

	_ = p.Close(ctx)
	if ok, _ := p.Set(ctx, "c", []byte("3"), 1, 0); ok {
		t.Fatalf("Set after Close should be rejected")
	}
	if _, ok, _ := p.Get(ctx, "b"); ok {
		t.Fatalf("values should be dropped on Close")
	}
}
