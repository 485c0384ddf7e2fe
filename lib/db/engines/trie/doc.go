/*
Package trie implements the lazy 256-way trie hash-sharding combinator.

Each digit of the key hash selects one of 256 slots of a matrix node. Matrix
nodes are allocated on first use, so only the paths that hold keys exist. The
slots of the last level hold the top heads of the shard skip lists:

	[pos][0]...[0xA1]...[255]           digit 0
	            |
	            [pos][0]...[0xB2]...    digit 1
	                        |
	                       head         skip list of shard 0xA1B2

A load factor of n costs n-1 extra slot reads per cache miss and supports up
to 256^n shards.

Two lock strategies are involved. Operations on a shard run under the shard
lock (a dispatch lock keyed by shard id unless configured otherwise). Child
matrix nodes are looked up under a read lock and created under a write lock of
their parent, both taken from a separate dispatch lock keyed by the parent's
position. A shard lock is always taken before a structure lock.
*/
package trie
