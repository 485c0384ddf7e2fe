package testing

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"golang.org/x/sync/errgroup"
)

// StoreFactory opens a store. For persistent backends, calling it again after the
// previous store was closed must reopen the same medium.
type StoreFactory func() (store.IStore, error)

// RunStoreTests runs the conformance suite. newFactory is called once per sub test
// and must return a factory for a fresh, empty medium.
func RunStoreTests(t *testing.T, name string, newFactory func(t *testing.T) StoreFactory, persistent bool) {
	t.Run(name, func(t *testing.T) {
		t.Run("WriteRead", func(t *testing.T) {
			testWriteRead(t, mustOpen(t, newFactory(t)))
		})

		t.Run("ReadOutsideHeap", func(t *testing.T) {
			testReadOutsideHeap(t, mustOpen(t, newFactory(t)))
		})

		t.Run("WriteOutsideHeap", func(t *testing.T) {
			testWriteOutsideHeap(t, mustOpen(t, newFactory(t)))
		})

		t.Run("InvalidAllocation", func(t *testing.T) {
			testInvalidAllocation(t, mustOpen(t, newFactory(t)))
		})

		t.Run("ReuseWithoutGrowth", func(t *testing.T) {
			testReuseWithoutGrowth(t, mustOpen(t, newFactory(t)))
		})

		t.Run("BestFit", func(t *testing.T) {
			testBestFit(t, mustOpen(t, newFactory(t)))
		})

		t.Run("SplitRemainder", func(t *testing.T) {
			testSplitRemainder(t, mustOpen(t, newFactory(t)))
		})

		t.Run("ConcurrentAllocate", func(t *testing.T) {
			testConcurrentAllocate(t, mustOpen(t, newFactory(t)))
		})

		t.Run("Objects", func(t *testing.T) {
			testObjects(t, mustOpen(t, newFactory(t)))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, mustOpen(t, newFactory(t)))
		})

		if !persistent {
			return
		}

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, newFactory(t))
		})

		t.Run("FreeListSurvivesReopen", func(t *testing.T) {
			testFreeListSurvivesReopen(t, newFactory(t))
		})

		t.Run("FreeListRecordReused", func(t *testing.T) {
			testFreeListRecordReused(t, newFactory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustOpen(t *testing.T, factory StoreFactory) store.IStore {
	t.Helper()
	s, err := factory()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func mustAllocate(t *testing.T, s store.IStore, size uint32) store.Position {
	t.Helper()
	pos, err := s.Allocate(size)
	if err != nil {
		t.Fatalf("Allocate(%d) failed: %v", size, err)
	}
	return pos
}

func pattern(size int, seed byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, s store.IStore) {
	defer s.Close()

	sizes := []uint32{1, 7, 64, 4096, 100_000}
	positions := make([]store.Position, len(sizes))
	for i, size := range sizes {
		positions[i] = mustAllocate(t, s, size)
		if positions[i] < store.HeaderSize {
			t.Fatalf("Allocate returned position %d inside the header", positions[i])
		}
		n, err := s.Write(pattern(int(size), byte(i)), positions[i])
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != int(size) {
			t.Errorf("Expected %d bytes written, got %d", size, n)
		}
	}

	for i, size := range sizes {
		b, ok, err := s.Read(positions[i], size)
		if err != nil || !ok {
			t.Fatalf("Read(%d, %d) = loaded %v, err %v", positions[i], size, ok, err)
		}
		if !bytes.Equal(b, pattern(int(size), byte(i))) {
			t.Errorf("Data at %d does not match written data", positions[i])
		}
	}
}

func testReadOutsideHeap(t *testing.T, s store.IStore) {
	defer s.Close()

	pos := mustAllocate(t, s, 16)

	for _, tc := range []struct {
		pos  store.Position
		size uint32
	}{
		{pos: store.Position(s.Size()), size: 1},
		{pos: pos, size: 17},
		{pos: store.NilPosition, size: 8},
		{pos: store.Position(s.Size()) + 1<<20, size: 8},
	} {
		b, ok, err := s.Read(tc.pos, tc.size)
		if err != nil {
			t.Errorf("Read(%d, %d) returned error %v, expected not found", tc.pos, tc.size, err)
		}
		if ok || b != nil {
			t.Errorf("Read(%d, %d) expected not found, got %d bytes", tc.pos, tc.size, len(b))
		}
	}
}

func testWriteOutsideHeap(t *testing.T, s store.IStore) {
	defer s.Close()

	pos := mustAllocate(t, s, 16)

	if _, err := s.Write(make([]byte, 17), pos); !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected RetCInvalidOperation for write past end, got %v", err)
	}
	if _, err := s.Write([]byte{1}, 0); !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected RetCInvalidOperation for write into header, got %v", err)
	}
}

func testInvalidAllocation(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, err := s.Allocate(0); !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected RetCInvalidOperation for empty allocation, got %v", err)
	}
	if err := s.Deallocate(store.Position(s.Size()), 8); !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected RetCInvalidOperation when freeing beyond the heap, got %v", err)
	}
}

func testReuseWithoutGrowth(t *testing.T, s store.IStore) {
	defer s.Close()

	pos := mustAllocate(t, s, 256)
	mustAllocate(t, s, 8) // keep pos away from the end of the heap

	if err := s.Deallocate(pos, 256); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}

	size := s.Size()
	reused := mustAllocate(t, s, 200)
	if reused != pos {
		t.Errorf("Expected freed span %d to be reused, got %d", pos, reused)
	}
	if s.Size() != size {
		t.Errorf("Heap grew from %d to %d although a free span fits", size, s.Size())
	}

	stats := s.Stats()
	if stats.Reuses != 1 {
		t.Errorf("Expected 1 reuse, got %d", stats.Reuses)
	}
}

func testBestFit(t *testing.T, s store.IStore) {
	defer s.Close()

	large := mustAllocate(t, s, 1024)
	mustAllocate(t, s, 8)
	small := mustAllocate(t, s, 64)
	mustAllocate(t, s, 8)

	if err := s.Deallocate(large, 1024); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}
	if err := s.Deallocate(small, 64); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}

	if got := mustAllocate(t, s, 60); got != small {
		t.Errorf("Expected the smallest fitting span %d, got %d", small, got)
	}
	if got := mustAllocate(t, s, 60); got != large {
		t.Errorf("Expected the remaining span %d, got %d", large, got)
	}
}

func testSplitRemainder(t *testing.T, s store.IStore) {
	defer s.Close()

	pos := mustAllocate(t, s, 512)
	mustAllocate(t, s, 8)
	if err := s.Deallocate(pos, 512); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}

	// the first allocation splits the span, the second one takes the remainder
	if got := mustAllocate(t, s, 128); got != pos {
		t.Errorf("Expected %d, got %d", pos, got)
	}
	if got := mustAllocate(t, s, 384); got != pos+128 {
		t.Errorf("Expected the remainder at %d, got %d", pos+128, got)
	}
	if stats := s.Stats(); stats.FreeSpans != 0 {
		t.Errorf("Expected an empty free list, got %d spans", stats.FreeSpans)
	}
}

func testConcurrentAllocate(t *testing.T, s store.IStore) {
	defer s.Close()

	const (
		workers   = 16
		perWorker = 200
	)

	type alloc struct {
		pos  store.Position
		size uint32
	}

	var (
		mu     sync.Mutex
		allocs []alloc
		g      errgroup.Group
	)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			local := make([]alloc, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				size := uint32(8 + (w*perWorker+i)%97)
				pos, err := s.Allocate(size)
				if err != nil {
					return err
				}
				if _, err := s.Write(pattern(int(size), byte(w)), pos); err != nil {
					return err
				}
				local = append(local, alloc{pos, size})
				// give some spans back so the free list is exercised as well
				if i%5 == 4 {
					last := local[len(local)-1]
					local = local[:len(local)-1]
					if err := s.Deallocate(last.pos, last.size); err != nil {
						return err
					}
				}
			}
			mu.Lock()
			allocs = append(allocs, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent allocation failed: %v", err)
	}

	sort.Slice(allocs, func(i, j int) bool { return allocs[i].pos < allocs[j].pos })
	for i := 1; i < len(allocs); i++ {
		prev := allocs[i-1]
		if uint64(prev.pos)+uint64(prev.size) > uint64(allocs[i].pos) {
			t.Fatalf("Overlapping allocations: [%d, %d) and [%d, %d)",
				prev.pos, uint64(prev.pos)+uint64(prev.size), allocs[i].pos, uint64(allocs[i].pos)+uint64(allocs[i].size))
		}
	}
}

type point struct {
	X, Y int64
}

func testObjects(t *testing.T, s store.IStore) {
	defer s.Close()

	pointSer := serializer.NewBinarySerializer[point]()
	pos, size, err := store.WriteObject(s, point{X: 3, Y: -4}, pointSer)
	if err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}

	p, ok, err := store.ReadObject(s, pos, size, pointSer)
	if err != nil || !ok {
		t.Fatalf("ReadObject failed: loaded %v, err %v", ok, err)
	}
	if p != (point{X: 3, Y: -4}) {
		t.Errorf("Expected {3 -4}, got %v", p)
	}

	// the same bytes read as a differently sized type are a buffering fault
	_, _, err = store.ReadObject(s, pos, size, serializer.NewBinarySerializer[uint32]())
	var bufErr *store.BufferingError
	if !errors.As(err, &bufErr) {
		t.Fatalf("Expected *BufferingError, got %v", err)
	}
	if bufErr.Pos != pos {
		t.Errorf("Expected buffering fault at %d, got %d", pos, bufErr.Pos)
	}

	// not found stays distinct from a buffering fault
	_, ok, err = store.ReadObject(s, store.Position(s.Size()), size, pointSer)
	if ok || err != nil {
		t.Errorf("Expected not found without error, got loaded %v, err %v", ok, err)
	}
}

func testClosed(t *testing.T, s store.IStore) {
	pos := mustAllocate(t, s, 8)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.Allocate(8); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed from Allocate, got %v", err)
	}
	if _, _, err := s.Read(pos, 8); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed from Read, got %v", err)
	}
	if _, err := s.Write([]byte{1}, pos); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed from Write, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed from second Close, got %v", err)
	}
}

func testReopen(t *testing.T, factory StoreFactory) {
	s := mustOpen(t, factory)

	data := pattern(10_000, 42)
	pos := mustAllocate(t, s, uint32(len(data)))
	if _, err := s.Write(data, pos); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.SetRoot(pos); err != nil {
		t.Fatalf("SetRoot failed: %v", err)
	}
	size := s.Size()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = mustOpen(t, factory)
	defer s.Delete()

	if s.Root() != pos {
		t.Errorf("Expected root %d after reopen, got %d", pos, s.Root())
	}
	if s.Size() != size {
		t.Errorf("Expected logical size %d after reopen, got %d", size, s.Size())
	}
	b, ok, err := s.Read(pos, uint32(len(data)))
	if err != nil || !ok {
		t.Fatalf("Read after reopen failed: loaded %v, err %v", ok, err)
	}
	if !bytes.Equal(b, data) {
		t.Errorf("Data does not match after reopen")
	}
}

func testFreeListSurvivesReopen(t *testing.T, factory StoreFactory) {
	s := mustOpen(t, factory)

	freed := mustAllocate(t, s, 300)
	mustAllocate(t, s, 8)
	if err := s.Deallocate(freed, 300); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = mustOpen(t, factory)
	defer s.Delete()

	// the free list record itself stays reserved for the next Close
	if stats := s.Stats(); stats.FreeSpans != 1 {
		t.Errorf("Expected 1 free span after reopen, got %d", stats.FreeSpans)
	}
	size := s.Size()
	if got := mustAllocate(t, s, 300); got != freed {
		t.Errorf("Expected span %d freed before reopen to be reused, got %d", freed, got)
	}
	if s.Size() != size {
		t.Errorf("Heap grew from %d to %d although a persisted free span fits", size, s.Size())
	}
}

func testFreeListRecordReused(t *testing.T, factory StoreFactory) {
	s := mustOpen(t, factory)

	var spans []store.Position
	for i := 0; i < 6; i++ {
		spans = append(spans, mustAllocate(t, s, 100))
	}
	// free every other span so the list holds three separate entries
	for i := 0; i < len(spans); i += 2 {
		if err := s.Deallocate(spans[i], 100); err != nil {
			t.Fatalf("Deallocate failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = mustOpen(t, factory)
	size := s.Size()
	for cycle := 0; cycle < 5; cycle++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		s = mustOpen(t, factory)
		if s.Size() != size {
			t.Fatalf("Heap grew from %d to %d after %d open/close cycles", size, s.Size(), cycle+1)
		}
		if stats := s.Stats(); stats.FreeSpans != 3 {
			t.Fatalf("Expected 3 free spans after cycle %d, got %d", cycle+1, stats.FreeSpans)
		}
	}

	// a longer list no longer fits into the old record: the record is released
	// and comes back as a free span on the next open
	if err := s.Deallocate(spans[1], 100); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s = mustOpen(t, factory)
	defer s.Delete()

	if stats := s.Stats(); stats.FreeSpans != 5 {
		t.Errorf("Expected 5 free spans after the record moved, got %d", stats.FreeSpans)
	}
}
