/*
Package bitmap implements the fixed bitmap hash-sharding combinator.

The first load factor digits of the key hash select one of 256^lf slots in a
flat array that is allocated and zeroed when the map is created. A slot holds
the top head of the skip list of its shard, or zero while the shard is unused:

	header.first -> [slot 0][slot 1] ... [slot 256^lf-1]
	                   |        |
	                 head     head
	                   |        |
	                  ...      ...

Shard resolution is a single slot read (and usually a cache hit), at the price
of the array: 2 KiB for load factor 1, 512 KiB for load factor 2. Operations on a
shard run under the bucket lock of its shard id, so writers of unrelated
buckets never wait for each other.
*/
package bitmap
