package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DedupEvery    uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to the raw key; set HashKeys to log a
	// SHA-256 prefix instead.
	Redact   func(string) string
	HashKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	dedupCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if !h.opts.HashKeys {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReadDeduplicated(key string) {
	if h.l == nil || !sample(h.opts.DedupEvery, &h.dedupCtr) {
		return
	}
	h.l.Debug("querycache.read_deduplicated", "key", h.redact(key))
}

func (h *Hooks) StaleResponseDiscarded(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.stale_response_discarded",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Info("querycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenStoreError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.genstore_error", "op", op, "err", err)
}

func (h *Hooks) RollbackApplied(mutation string, restored int) {
	if h.l == nil {
		return
	}
	h.l.Info("querycache.rollback_applied",
		"mutation", mutation,
		"restored", restored)
}

func (h *Hooks) SnapshotMissing(mutation, key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.snapshot_missing",
		"mutation", mutation,
		"key", h.redact(key))
}

func (h *Hooks) EntriesEvicted(n int) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.entries_evicted", "count", n)
}
