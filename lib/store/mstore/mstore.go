package mstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// SliceSize is the size of a single mapped window.
const SliceSize = 3 << 20

// Open opens (or creates) the file at path and returns a memory-mapped store on top of it.
func Open(path string, opts *store.Options) (store.IStore, error) {
	m, err := NewMedium(path)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(m, opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return s, nil
}

// slice is one mapped window of the file.
type slice struct {
	mu   sync.RWMutex
	data []byte
}

type mmapMedium struct {
	path string
	file *os.File

	slices  *xsync.MapOf[int, *slice]
	mapMu   sync.Mutex // serializes mapping of new slices and growth
	size    atomic.Int64
	closed  atomic.Bool
	closeMu sync.RWMutex // held shared by every I/O operation, exclusive by Close
}

// NewMedium opens (or creates) the file at path as a memory-mapped medium. A file
// whose size is not a multiple of SliceSize is extended to the next slice boundary.
func NewMedium(path string) (store.Medium, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, store.NewError(store.RetCIOError, store.NilPosition, fmt.Sprintf("cannot open %s", path), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, store.NewError(store.RetCIOError, store.NilPosition, fmt.Sprintf("cannot stat %s", path), err)
	}

	m := &mmapMedium{
		path:   path,
		file:   f,
		slices: xsync.NewMapOf[int, *slice](),
	}
	size := info.Size()
	if aligned := alignToSlice(size); aligned != size {
		if err := f.Truncate(aligned); err != nil {
			_ = f.Close()
			return nil, store.NewError(store.RetCIOError, store.NilPosition, fmt.Sprintf("cannot align %s", path), err)
		}
		size = aligned
	}
	m.size.Store(size)
	return m, nil
}

func alignToSlice(size int64) int64 {
	return (size + SliceSize - 1) / SliceSize * SliceSize
}

// --------------------------------------------------------------------------
// Slice handling
// --------------------------------------------------------------------------

// slice returns the mapped window idx, mapping it on first use.
func (m *mmapMedium) slice(idx int) (*slice, error) {
	if s, ok := m.slices.Load(idx); ok {
		return s, nil
	}

	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if s, ok := m.slices.Load(idx); ok {
		return s, nil
	}
	if int64(idx+1)*SliceSize > m.size.Load() {
		return nil, io.EOF
	}
	data, err := mapSlice(m.file, int64(idx)*SliceSize, SliceSize)
	if err != nil {
		return nil, fmt.Errorf("cannot map slice %d: %w", idx, err)
	}
	s := &slice{data: data}
	m.slices.Store(idx, s)
	return s, nil
}

// span resolves and locks every slice touched by [off, off+n) in ascending order.
// The returned function releases the locks.
func (m *mmapMedium) span(off int64, n int, write bool) ([]*slice, func(), error) {
	if n == 0 {
		return nil, func() {}, nil
	}
	first := int(off / SliceSize)
	last := int((off + int64(n) - 1) / SliceSize)

	touched := make([]*slice, 0, last-first+1)
	for idx := first; idx <= last; idx++ {
		s, err := m.slice(idx)
		if err != nil {
			return nil, nil, err
		}
		touched = append(touched, s)
	}

	for _, s := range touched {
		if write {
			s.mu.Lock()
		} else {
			s.mu.RLock()
		}
	}
	release := func() {
		for i := len(touched) - 1; i >= 0; i-- {
			if write {
				touched[i].mu.Unlock()
			} else {
				touched[i].mu.RUnlock()
			}
		}
	}
	return touched, release, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.Medium)
// --------------------------------------------------------------------------

func (m *mmapMedium) ReadAt(p []byte, off int64) (int, error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed.Load() {
		return 0, store.ErrClosed
	}

	touched, release, err := m.span(off, len(p), false)
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	for _, s := range touched {
		pos := (off + int64(n)) % SliceSize
		n += copy(p[n:], s.data[pos:])
	}
	return n, nil
}

func (m *mmapMedium) WriteAt(p []byte, off int64) (int, error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed.Load() {
		return 0, store.ErrClosed
	}

	touched, release, err := m.span(off, len(p), true)
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	for _, s := range touched {
		pos := (off + int64(n)) % SliceSize
		n += copy(s.data[pos:], p[n:])
	}
	return n, nil
}

func (m *mmapMedium) Len() int64 { return m.size.Load() }

func (m *mmapMedium) Grow(size int64) error {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if size <= m.size.Load() {
		return nil
	}
	aligned := alignToSlice(size)
	if err := m.file.Truncate(aligned); err != nil {
		return err
	}
	m.size.Store(aligned)
	return nil
}

func (m *mmapMedium) Sync() error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed.Load() {
		return store.ErrClosed
	}
	return m.syncLocked()
}

func (m *mmapMedium) syncLocked() error {
	var errs []error
	m.slices.Range(func(idx int, s *slice) bool {
		s.mu.RLock()
		if err := syncSlice(s.data); err != nil {
			errs = append(errs, fmt.Errorf("slice %d: %w", idx, err))
		}
		s.mu.RUnlock()
		return true
	})
	return errors.Join(errs...)
}

func (m *mmapMedium) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	errs := []error{m.syncLocked()}
	m.slices.Range(func(idx int, s *slice) bool {
		if err := unmapSlice(s.data); err != nil {
			errs = append(errs, fmt.Errorf("cannot unmap slice %d: %w", idx, err))
		}
		s.data = nil
		return true
	})
	m.slices.Clear()
	errs = append(errs, m.file.Close())
	return errors.Join(errs...)
}

func (m *mmapMedium) Remove() error {
	closeErr := m.Close()
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

func (m *mmapMedium) Backend() string { return "mmap" }

// MappedSlices returns the number of currently mapped slices of a medium created by
// NewMedium (0 for any other medium).
func MappedSlices(md store.Medium) int {
	if m, ok := md.(*mmapMedium); ok {
		return m.slices.Size()
	}
	return 0
}
