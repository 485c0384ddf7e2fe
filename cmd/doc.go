// Package cmd implements the command-line interface of skipstore. It opens a
// store file (or an in-memory store) with one of the map engines and runs
// operations, benchmarks or diagnostics against it.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for map operations (put, get, remove, range queries, etc.)
//     and the perf benchmark
//   - inspect: Prints configuration, store statistics and map info
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment as SKIPSTORE_<FLAG>
// (e.g. SKIPSTORE_LOAD_FACTOR=2) or in a .env / .env.local file.
//
// See skipstore -help for a list of all commands.
package cmd
