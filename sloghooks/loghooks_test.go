package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHashKeysRedactsAndSamples(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{HashKeys: true, SelfHealEvery: 2})

	h.SnapshotMissing("toggleFavorite", "books/detail/b1")
	if strings.Contains(buf.String(), "books/detail/b1") {
		t.Fatalf("key should be hashed: %q", buf.String())
	}

	buf.Reset()
	h.SelfHeal("qc:k", "missing")
	h.SelfHeal("qc:k", "missing")
	if n := strings.Count(buf.String(), "querycache.self_heal"); n != 1 {
		t.Fatalf("sampled lines=%d want 1", n)
	}
}
