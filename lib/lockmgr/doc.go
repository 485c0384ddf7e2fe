// Package lockmgr provides the locking strategies an index is parameterized with.
// Instead of separate index types per locking flavor, every index receives an
// ILockStrategy and wraps its critical sections in Read, Write or All.
//
// Strategies:
//
//   - none: no synchronization at all. For single-threaded use.
//
//   - global: one reader/writer lock shared by all resources. Readers run in
//     parallel, every writer excludes everybody.
//
//   - bucket: resources are mapped onto a fixed number of buckets (resource %
//     buckets), each guarded by a reader-biased xsync.RBMutex. Operations on
//     different buckets never block each other. The explicit RLock/RUnlock and
//     Lock/Unlock methods return and consume a Stamp; releasing with a stamp that
//     was not produced by the matching acquire call panics.
//
//   - dispatch: one lock per resource, created on demand and kept in an
//     xsync.MapOf while it is held or waited for. Used by the trie combinator,
//     where shards and structural nodes are locked individually.
//
// Lock ordering: All acquires every bucket in ascending order. Callers that need
// two resources at once must always acquire them in the same order (the indexes
// in this module take a shard lock first and a structural lock second, never the
// other way around).
//
// No strategy supports timeouts or reentrancy; acquiring a lock already held by
// the same goroutine deadlocks.
package lockmgr
