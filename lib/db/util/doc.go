// Package util provides the building blocks shared by the index engines.
//
// The package contains:
//   - functions: seeded FNV-1a hashing folded to 32 bits and the digit and shard
//     id helpers the hash combinators route keys with
//   - cache: a bounded LRU cache (hashicorp/golang-lru) with hit and miss
//     counters, used to remember where the skip list of a shard lives
//   - lockfreempsc: a lock-free multi-producer single-consumer queue
//   - reclaimer: background reclamation of unlinked spans on top of the queue
//   - statistics: summary statistics and a distribution quality score used to
//     report how evenly records are spread over shards
package util
