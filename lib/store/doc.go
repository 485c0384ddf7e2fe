// Package store provides a persistent, byte-addressable heap. Callers allocate
// spans of bytes, address them by Position and hand them back for reuse. All
// higher layers (the skip list and both hash combinators) keep their nodes and
// records in such a heap.
//
// Key Components:
//
//   - IStore Interface: Allocate, Deallocate, Read, Write plus a persisted user
//     root slot. Reads outside the allocated heap report "not found" through the
//     loaded flag; writes outside it are rejected with RetCInvalidOperation.
//
//   - Medium Interface: the raw backing of a store. The package ships three media
//     in sub-packages: fstore (a regular file), mstore (a file mapped in 3 MiB
//     slices) and estore (memory only, for tests and ephemeral data).
//
//   - Allocator: a best-fit free list ordered by (size, position) kept in a
//     B-tree. Remainders of reused spans go back to the list when they exceed
//     Options.MinFragment. The list is written into the heap on Close and
//     restored (and the record itself reclaimed) on the next Open.
//
//   - Error System: *Error carries a RetCode and the failing position,
//     *BufferingError reports bytes that exist but do not decode into the expected
//     type. ReadObject and WriteObject bridge the heap and package serializer.
//
// Layout of a medium:
//
//	[0:64)  header: magic "SKIPSTOR", version, logical size, root, free list record
//	[64:)   allocated spans
//
// The logical size is written to the header before a grown span is handed out, so
// a crash can leak space but never hand out a position twice after reopening.
//
// Thread-safety: all IStore implementations are safe for concurrent use.
// Concurrent writes to the same span are the caller's responsibility.
package store
