/*
Package skiplist implements a persisted skip list on top of a store.IStore and
the map built from a single skip list.

# Layout

Every level of a skip list starts at a head node; heads are stacked through
their down links and the topmost one is the anchor of the list. A key occupies
one record node per level it reaches, all pointing to the same value record:

	head(2) ----------------------------> [k=9]
	   |                                    |
	head(1) ----------> [k=4] ----------> [k=9]
	   |                  |                 |
	head(0) -> [k=1] -> [k=4] -> [k=7] -> [k=9]

The level-0 node of a key is its record reference. Updates rewrite the record
fields of the existing nodes, so the reference is stable until the key is
removed; removal tombstones the level-0 node before its span is released.

# Reuse

Engine knows nothing about headers, routing or locks. Anchor abstracts where the
top head is stored, Core bundles the engine with value handling, the reclaim
policy and metrics. The bitmap and trie combinators run many skip lists through
one Core and only add routing and locking.
*/
package skiplist
