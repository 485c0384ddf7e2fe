// Package db defines the map contract every index in this module implements and the
// options and metadata shared by all implementations.
//
// Key Components:
//
//   - IMap Interface: a persistent generic map (Get, Put, Remove, ContainsKey,
//     ContainsValue, Clear, PutAll) extended with stable record references
//     (GetRecordReference, GetByReference, GetFieldByReference) and range queries
//     (Above, Below) returning sets of references as roaring64 bitmaps.
//
//   - Implementations: three engines satisfy IMap:
//
//   - skiplist (github.com/ValentinKolb/skipstore/lib/db/engines/skiplist):
//     a single persisted skip list. Keys are globally ordered.
//
//   - bitmap (github.com/ValentinKolb/skipstore/lib/db/engines/bitmap): keys are
//     routed by hash digits into a pre-allocated flat array of skip lists.
//
//   - trie (github.com/ValentinKolb/skipstore/lib/db/engines/trie): keys are
//     routed through lazily allocated 256-way matrix nodes into skip lists.
//
//   - Feature Flags: implementations advertise capabilities through SupportsFeature,
//     e.g. whether Range is globally ordered or field access is configured.
//
//   - Options: locking strategy, reclaim policy, maximum skip list level, load
//     factor, shard cache size and the field table for partial reads.
//
// Note on references:
//   - A record reference is the position of the level-0 node of its key. Updates
//     rewrite the record fields of all nodes of the key, so the reference survives
//     value changes. Removal writes a tombstone into the level-0 node before its
//     bytes are (optionally) reclaimed, so a stale reference resolves to not-found.
//
// Note on reclamation:
//   - With ReclaimNone the bytes of removed nodes and replaced records are left in
//     the store. ReclaimImmediate frees them inside the operation, ReclaimDeferred
//     queues them for a background goroutine. Clear never reclaims; the old
//     structure is orphaned.
//
// The testing package (github.com/ValentinKolb/skipstore/lib/db/testing) provides
// the conformance suite (RunMapTests) and benchmarks (RunMapBenchmarks) every
// implementation runs.
package db
