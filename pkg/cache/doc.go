// Package cache provides the partition store behind the offline layer.
//
// A Store holds a small, fixed set of named partitions ("static-v1",
// "runtime-v1"). Each partition maps a normalized request identity
// (method + absolute URL) to the last response snapshot stored for it.
//
// Three backends implement Store:
//
//   - MemoryStore: process memory, used by tests and ephemeral runs
//   - BoltStore: a bbolt file on the device, one bucket per partition
//   - RedisStore: one Redis hash per partition plus a set of names
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	runtime, err := store.Open(ctx, "runtime-v1")
//	if err != nil {
//		return err
//	}
//
//	// Duplicate the live response before returning it to the caller
//	entry, err := cache.ResponseToEntry(resp, cache.TypeBasic)
//	if err != nil {
//		return err
//	}
//	if err := runtime.Put(ctx, cache.KeyFor(req), entry); err != nil {
//		// storage faults never fail the request path
//	}
//
//	entry, err = runtime.Get(ctx, cache.KeyFor(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// not stored yet
//	}
//
// Partitions are created lazily by the first Put and destroyed wholesale by
// Store.Delete. Only the lifecycle controller creates or deletes partitions;
// the fetch interceptor only reads and writes their contents.
//
// # Metrics
//
//   - paradigm_cache_hits_total{partition} - Cache hits
//   - paradigm_cache_misses_total - Cache misses
//   - paradigm_cache_errors_total{operation} - Storage faults
//   - paradigm_cache_partitions_deleted_total - Partitions dropped
package cache
