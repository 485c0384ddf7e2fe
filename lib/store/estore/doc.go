// Package estore provides an ephemeral, memory-only medium. It behaves like the file
// backends (positional I/O, growth, Close) but loses its contents with the process.
// It is meant for tests and for caches that do not need to survive a restart.
package estore
