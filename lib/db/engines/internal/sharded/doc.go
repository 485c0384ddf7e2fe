// Package sharded contains the map shared by the hash-sharding combinators.
//
// A combinator hashes the serialized key, folds the first load factor digits of
// the hash into a shard id and runs every operation on the skip list of that
// shard. How the slot holding the top head of a shard is found is the only thing
// that differs between the bitmap and the trie; both plug in through Router.
package sharded
