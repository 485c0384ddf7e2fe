package estore

import (
	"io"
	"sync"

	"github.com/ValentinKolb/skipstore/lib/store"
)

// ChunkSize is the allocation unit of the in-memory medium.
const ChunkSize = 64 << 10

// Open returns a store backed by memory only.
func Open(opts *store.Options) (store.IStore, error) {
	return store.Open(NewMedium(), opts)
}

// memMedium keeps its bytes in fixed-size chunks so growing never copies data that
// concurrent readers might be looking at.
type memMedium struct {
	mu     sync.RWMutex
	chunks [][]byte
	closed bool
}

// NewMedium returns an empty in-memory medium.
func NewMedium() store.Medium {
	return &memMedium{}
}

func (m *memMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, store.ErrClosed
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		idx := int(pos / ChunkSize)
		if idx >= len(m.chunks) {
			return n, io.EOF
		}
		n += copy(p[n:], m.chunks[idx][pos%ChunkSize:])
	}
	return n, nil
}

func (m *memMedium) WriteAt(p []byte, off int64) (int, error) {
	// chunks never move, so disjoint writers can share the read lock
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, store.ErrClosed
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		idx := int(pos / ChunkSize)
		if idx >= len(m.chunks) {
			return n, io.ErrShortWrite
		}
		n += copy(m.chunks[idx][pos%ChunkSize:], p[n:])
	}
	return n, nil
}

func (m *memMedium) Len() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.chunks)) * ChunkSize
}

func (m *memMedium) Grow(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return store.ErrClosed
	}
	for int64(len(m.chunks))*ChunkSize < size {
		m.chunks = append(m.chunks, make([]byte, ChunkSize))
	}
	return nil
}

func (m *memMedium) Sync() error { return nil }

func (m *memMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memMedium) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.chunks = nil
	return nil
}

func (m *memMedium) Backend() string { return "memory" }
