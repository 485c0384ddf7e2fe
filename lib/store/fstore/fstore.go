package fstore

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/skipstore/lib/store"
)

// GrowStep is the granularity the file is extended with.
const GrowStep = 1 << 20

// Open opens (or creates) the file at path and returns a store on top of it.
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

type fileMedium struct {
	path   string
	file   *os.File
	size   atomic.Int64
	growMu sync.Mutex
	closed atomic.Bool
}

// NewMedium opens (or creates) the file at path as a store medium.
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
	m := &fileMedium{path: path, file: f}
	m.size.Store(info.Size())
	return m, nil
}

func (m *fileMedium) ReadAt(p []byte, off int64) (int, error) {
	return m.file.ReadAt(p, off)
}

func (m *fileMedium) WriteAt(p []byte, off int64) (int, error) {
	return m.file.WriteAt(p, off)
}

func (m *fileMedium) Len() int64 { return m.size.Load() }

func (m *fileMedium) Grow(size int64) error {
	m.growMu.Lock()
	defer m.growMu.Unlock()

	if size <= m.size.Load() {
		return nil
	}
	aligned := (size + GrowStep - 1) / GrowStep * GrowStep
	if err := m.file.Truncate(aligned); err != nil {
		return err
	}
	m.size.Store(aligned)
	return nil
}

func (m *fileMedium) Sync() error { return m.file.Sync() }

func (m *fileMedium) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.file.Close()
}

func (m *fileMedium) Remove() error {
	closeErr := m.Close()
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

func (m *fileMedium) Backend() string { return "file" }
