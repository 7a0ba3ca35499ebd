package querycache

import "time"

// Status of a cache entry.
type Status uint8

const (
	StatusPending Status = iota // created, no read has resolved yet
	StatusSuccess
	StatusError // last read failed; the previous value (if any) is kept
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time copy of a cache entry.
type Entry struct {
	Key         Key
	Status      Status
	Value       []byte // encoded; nil when HasValue is false
	HasValue    bool
	Err         error // error of the last failed read
	FetchedAt   time.Time
	StaleAfter  time.Time
	EvictAfter  time.Time
	Invalidated bool
	Fetching    bool // a read is in flight
}

// Stale reports whether e should be refetched at now.
func (e Entry) Stale(now time.Time) bool {
	return !e.HasValue || e.Invalidated || !now.Before(e.StaleAfter)
}

type entry struct {
	key Key
	sk  string

	status      Status
	err         error
	hasValue    bool
	valueGen    uint64 // generation carried by the provider frame
	fetchedAt   time.Time
	staleAfter  time.Time
	evictAfter  time.Time
	invalidated bool

	staleTime time.Duration
	gcTime    time.Duration

	pins int // pending mutations holding this entry
}

func (e *entry) stale(now time.Time) bool {
	return !e.hasValue || e.invalidated || !now.Before(e.staleAfter)
}

func (e *entry) snapshot(raw []byte, fetching bool) Entry {
	return Entry{
		Key:         e.key,
		Status:      e.status,
		Value:       raw,
		HasValue:    e.hasValue,
		Err:         e.err,
		FetchedAt:   e.fetchedAt,
		StaleAfter:  e.staleAfter,
		EvictAfter:  e.evictAfter,
		Invalidated: e.invalidated,
		Fetching:    fetching,
	}
}
