package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/querycache"
)

func TestFieldsAreSortedAndLeveled(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("hidden", nil)
	l.Warn("stale response discarded", querycache.Fields{"reason": "superseded", "key": "books/list"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("missing level: %q", out)
	}
	if ki, ri := strings.Index(out, "key="), strings.Index(out, "reason="); ki < 0 || ri < 0 || ki > ri {
		t.Fatalf("fields not sorted: %q", out)
	}
}
