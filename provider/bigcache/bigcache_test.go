package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestRoundTripAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{LifeWindow: time.Minute, CleanWindow: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if ok, err := p.Set(ctx, "qc:k", []byte("v"), 1, 0); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, "qc:k")
	if err != nil || !hit || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get=%q hit=%v err=%v", got, hit, err)
	}
	if _, hit, err := p.Get(ctx, "qc:none"); hit || err != nil {
		t.Fatalf("miss: hit=%v err=%v", hit, err)
	}
	if err := p.Del(ctx, "qc:none"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
}
