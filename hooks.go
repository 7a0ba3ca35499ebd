package querycache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; some are called while the
// store lock is held. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A caller attached to a read already in flight for key.
	ReadDeduplicated(key string)

	// A read resolved but its result was not committed.
	// reason ∈ {"canceled", "superseded", "closed"}
	StaleResponseDiscarded(key, reason string)

	// The provider no longer held a committed value; the entry was marked stale.
	// reason ∈ {"missing", "corrupt", "gen_mismatch", "provider_error"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false (or an error) on Set.
	ProviderSetRejected(storageKey string)

	// GenStore failed. op ∈ {"snapshot", "bump"}
	GenStoreError(op string, err error)

	// A failed mutation restored `restored` keys from its snapshot.
	RollbackApplied(mutation string, restored int)

	// A key written optimistically had no snapshot to restore.
	SnapshotMissing(mutation, key string)

	// The sweep dropped n unobserved, expired entries.
	EntriesEvicted(n int)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) ReadDeduplicated(string)               {}
func (NopHooks) StaleResponseDiscarded(string, string) {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) GenStoreError(string, error)           {}
func (NopHooks) RollbackApplied(string, int)           {}
func (NopHooks) SnapshotMissing(string, string)        {}
func (NopHooks) EntriesEvicted(int)                    {}
