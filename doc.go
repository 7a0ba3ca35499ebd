// Package querycache is a client-side cache for server data with
// stale-while-revalidate reads, cursor pagination and optimistic mutations.
//
// Components:
//   - Store: keyed entries with freshness timestamps, prefix invalidation,
//     subscriptions, an in-flight read registry and an eviction sweep.
//   - Fetch / Prefetch: cached reads. Concurrent readers of a key share one
//     remote call; stale values are served while they are revalidated.
//   - Pager: cursor pages of one list accumulated under one key.
//   - Mutate: optimistic update, snapshot rollback on failure, invalidation
//     on settle.
//   - Debouncer, Prefetcher: timer-driven input settling and dwell prefetch.
//
// Values are kept encoded (codec package) in a byte Provider, framed with
// the generation they were committed at. Every commit bumps a per-key
// generation in a GenStore; a read commits only if the generation it
// started at is still current, so a slow or cancelled read can never
// overwrite newer data:
//
//	obs := gen(k)         // read starts
//	v   := fetch(k)       // remote call
//	if gen(k) == obs {    // nothing newer landed
//	    commit(k, v)      // bumps gen(k)
//	}
//
// Keys are hierarchical (see Key). Invalidate, CancelInFlight and
// mutation keys act on every key a prefix matches.
package querycache
