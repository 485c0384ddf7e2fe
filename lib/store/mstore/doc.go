// Package mstore backs a store.IStore with a memory-mapped file.
//
// The file is divided into slices of SliceSize (3 MiB). A slice is mapped the first
// time it is touched and stays mapped until the medium is closed; the file only ever
// grows by whole slices, so existing mappings are never invalidated by growth.
//
// Reads and writes that straddle a slice boundary are split. Every operation locks
// all slices it touches in ascending index order (shared for reads, exclusive for
// writes) and copies the parts from low to high offsets. Callers never see the slice
// locks, so the ordering rule cannot be violated from outside the package.
//
// Sync flushes every mapped slice with msync; Close flushes and unmaps them.
// Memory mapping requires a unix platform; elsewhere every slice access fails.
package mstore
