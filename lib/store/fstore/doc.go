// Package fstore backs a store.IStore with a regular file. Reads and writes use
// positional I/O (pread/pwrite) so concurrent operations on disjoint spans never
// share a file offset. The file grows in 1 MiB steps; the logical heap size lives in
// the store header, so trailing slack is ignored when the file is reopened.
package fstore
