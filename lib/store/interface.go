package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Position is a byte offset inside a store. NilPosition never refers to data
// because the store header occupies the first bytes of every medium.
type Position uint64

const NilPosition Position = 0

// IStore is a byte-addressable heap. Callers allocate spans, write and read them by
// position and give them back with Deallocate. Reads return the requested data along
// with a loaded flag; a read outside the allocated area is "not found", not an error.
type IStore interface {
	// Allocate returns the position of a span of exactly size bytes, reusing a
	// reclaimed span when one is large enough and growing the heap otherwise.
	Allocate(size uint32) (pos Position, err error)
	// Deallocate hands a span back for reuse. The bytes are neither zeroed nor verified.
	Deallocate(pos Position, size uint32) (err error)
	// Read returns size bytes starting at pos.
	Read(pos Position, size uint32) (b []byte, loaded bool, err error)
	// Write stores b at pos. The whole range must lie inside the allocated heap.
	Write(b []byte, pos Position) (n int, err error)

	// Root returns the persisted user root slot (NilPosition if unset).
	Root() (pos Position)
	// SetRoot persists pos in the user root slot.
	SetRoot(pos Position) (err error)

	// Size returns the logical end of the heap.
	Size() (size uint64)
	// Commit flushes all written data to the underlying medium.
	Commit() (err error)
	// Close persists the free list, flushes and releases the medium.
	Close() (err error)
	// Delete releases the medium and destroys its contents.
	Delete() (err error)

	// Stats returns a snapshot of allocation statistics.
	Stats() (stats Stats)
	// Metrics returns the metric set of this store.
	Metrics() (set *metrics.Set)
}

// Medium is the raw backing of a store: a file, a set of mapped slices or memory.
// The store keeps all bookkeeping and only asks the medium for positional I/O and
// capacity. Implementations must allow concurrent ReadAt/WriteAt calls on
// disjoint ranges.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	// Len returns the physical size, which can be larger than the logical heap size.
	Len() int64
	// Grow makes sure the medium can hold at least size bytes.
	Grow(size int64) error
	Sync() error
	Close() error
	// Remove closes the medium (if still open) and destroys it.
	Remove() error
	// Backend names the medium kind ("file", "mmap", "memory").
	Backend() string
}

// Stats describes the current allocation state of a store.
type Stats struct {
	Backend       string `json:"backend"`
	LogicalSize   uint64 `json:"logical_size"`
	PhysicalSize  int64  `json:"physical_size"`
	FreeSpans     int    `json:"free_spans"`
	FreeBytes     uint64 `json:"free_bytes"`
	Allocations   uint64 `json:"allocations"`
	Reuses        uint64 `json:"reuses"`
	Deallocations uint64 `json:"deallocations"`
}

// --------------------------------------------------------------------------
// Custom Error Types
// --------------------------------------------------------------------------

// Error wraps a return code, the position involved (if any) and the cause.
type Error struct {
	Code RetCode  // The return code
	Pos  Position // The position the operation failed at
	Msg  string   // The error message
	Err  error    // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("store error (%s) at %d: %s", e.Code, e.Pos, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, pos Position, msg string, cause error) *Error {
	return &Error{
		Code: code,
		Pos:  pos,
		Msg:  msg,
		Err:  cause,
	}
}

// IsCode reports whether err is a store *Error carrying code.
func IsCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// BufferingError reports bytes that could not be decoded into the expected type.
// It is distinct from "not found": the bytes exist but are corrupt or of another type.
type BufferingError struct {
	Pos      Position
	Expected string
	Actual   string
	Err      error
}

func (e *BufferingError) Error() string {
	msg := fmt.Sprintf("buffering fault at %d: expected %s", e.Pos, e.Expected)
	if e.Actual != "" {
		msg += ", found " + e.Actual
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BufferingError) Unwrap() error { return e.Err }

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = NewError(RetCClosed, NilPosition, "store is closed", nil)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation succeeded.
	RetCIOError                         // 1: The medium failed to read or write.
	RetCCapacity                        // 2: The heap cannot grow any further.
	RetCInvalidOperation                // 3: The request is invalid (bad span, write past end).
	RetCClosed                          // 4: The store has been closed.
	RetCCorrupt                         // 5: The store header or free list is damaged.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCIOError:
		return "IOError"
	case RetCCapacity:
		return "Capacity"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	case RetCCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}
