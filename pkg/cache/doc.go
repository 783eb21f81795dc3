// Package cache stores generated feed bodies together with their HTTP
// validators.
//
// Three interchangeable backends implement the Store interface:
//
//   - MemoryStore: process-local map, the default
//   - RedisStore: shared cache for multi-process deployments
//   - SQLiteStore: persistent single-node cache
//
// All backends share the same semantics:
//
//   - Get never returns an entry past its expiry; an expired entry is
//     lazily removed and reported as ErrCacheMiss
//   - Set computes the content hash, overwrites any previous entry for
//     the key and is atomic per key (last writer wins)
//   - DeleteMatching evicts entries whose generation parameters match a
//     predicate; it walks all entries and is meant for low-frequency
//     invalidation events, not steady-state traffic
//
// Caching is a performance optimization, never a correctness dependency:
// callers treat any backend error as a miss and regenerate.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	entry, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// regenerate the feed body
//	}
//
//	entry, err = store.Set(ctx, key, body, params, time.Hour)
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - feedgate_cache_hits_total{backend} - Cache hits
//   - feedgate_cache_misses_total - Cache misses
//   - feedgate_cache_errors_total{operation} - Backend operation errors
//   - feedgate_cache_evictions_total{reason} - Evictions by reason
package cache
