package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Header layout (HeaderSize bytes at offset 0 of every medium):
//
//	[0:8]   magic
//	[8]     version
//	[16:24] logical size
//	[24:32] user root
//	[32:40] position of the persisted free list (0 = none)
//	[40:44] size of the persisted free list
const (
	HeaderSize = 64

	magicNum     = "SKIPSTOR"
	storeVersion = 1

	offVersion      = 8
	offSize         = 16
	offRoot         = 24
	offFreeListPos  = 32
	offFreeListSize = 40

	// MaxSize bounds the logical heap size.
	MaxSize = 1 << 48

	defaultMinFragment = 16
)

// Options configures the allocator on top of a medium.
type Options struct {
	// MinFragment is the largest remainder of a reused span that is kept with the
	// allocation instead of going back to the free list.
	MinFragment uint32
}

// DefaultOptions returns the default store options.
func DefaultOptions() *Options {
	return &Options{
		MinFragment: defaultMinFragment,
	}
}

// --------------------------------------------------------------------------
// Store implementation shared by all backends
// --------------------------------------------------------------------------

type storeImpl struct {
	medium      Medium
	minFragment uint32

	mu     sync.Mutex // guards free, listSpan and growth of size
	free   *freeList
	// listSpan is the span of the free list record loaded at open. It is kept
	// out of the free list and rewritten on Close.
	listSpan span
	size   atomic.Uint64
	root   atomic.Uint64
	closed atomic.Bool

	metrics       *metrics.Set
	allocations   *metrics.Counter
	reuses        *metrics.Counter
	deallocations *metrics.Counter
	grownBytes    *metrics.Counter
	reads         *metrics.Counter
	writes        *metrics.Counter
}

// Open puts an allocator on top of m. An empty medium is initialized with a fresh
// header, otherwise the header and the persisted free list are loaded.
//
// Thread-safety: the returned store is safe for concurrent use.
func Open(m Medium, opts *Options) (IStore, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	s := &storeImpl{
		medium:      m,
		minFragment: opts.MinFragment,
		free:        newFreeList(),
		metrics:     metrics.NewSet(),
	}
	s.initMetrics()

	if m.Len() < HeaderSize {
		if err := s.format(); err != nil {
			return nil, err
		}
		plog.Debugf("initialized new %s store", m.Backend())
		return s, nil
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	plog.Infof("opened %s store (size=%d, free spans=%d)", m.Backend(), s.size.Load(), s.free.len())
	return s, nil
}

func (s *storeImpl) initMetrics() {
	label := fmt.Sprintf(`{backend=%q}`, s.medium.Backend())
	s.allocations = s.metrics.NewCounter("skipstore_store_allocations_total" + label)
	s.reuses = s.metrics.NewCounter("skipstore_store_reused_spans_total" + label)
	s.deallocations = s.metrics.NewCounter("skipstore_store_deallocations_total" + label)
	s.grownBytes = s.metrics.NewCounter("skipstore_store_grown_bytes_total" + label)
	s.reads = s.metrics.NewCounter("skipstore_store_reads_total" + label)
	s.writes = s.metrics.NewCounter("skipstore_store_writes_total" + label)
	s.metrics.NewGauge("skipstore_store_logical_size_bytes"+label, func() float64 {
		return float64(s.size.Load())
	})
}

// format writes a fresh header to an empty medium.
func (s *storeImpl) format() error {
	if err := s.medium.Grow(HeaderSize); err != nil {
		return NewError(RetCCapacity, NilPosition, "cannot allocate header", err)
	}
	hdr := make([]byte, HeaderSize)
	copy(hdr, magicNum)
	hdr[offVersion] = storeVersion
	binary.LittleEndian.PutUint64(hdr[offSize:], HeaderSize)
	if _, err := s.medium.WriteAt(hdr, 0); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot write header", err)
	}
	s.size.Store(HeaderSize)
	return nil
}

// load reads the header and restores the persisted free list.
func (s *storeImpl) load() error {
	hdr := make([]byte, HeaderSize)
	if _, err := s.medium.ReadAt(hdr, 0); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot read header", err)
	}
	if !bytes.Equal(hdr[:len(magicNum)], []byte(magicNum)) {
		return NewError(RetCCorrupt, NilPosition, "magic number mismatch", nil)
	}
	if hdr[offVersion] != storeVersion {
		return NewError(RetCCorrupt, NilPosition, fmt.Sprintf("unsupported version %d (expected %d)", hdr[offVersion], storeVersion), nil)
	}

	size := binary.LittleEndian.Uint64(hdr[offSize:])
	if size < HeaderSize || int64(size) > s.medium.Len() {
		return NewError(RetCCorrupt, NilPosition, fmt.Sprintf("logical size %d outside medium of %d bytes", size, s.medium.Len()), nil)
	}
	s.size.Store(size)
	s.root.Store(binary.LittleEndian.Uint64(hdr[offRoot:]))

	flPos := Position(binary.LittleEndian.Uint64(hdr[offFreeListPos:]))
	flSize := binary.LittleEndian.Uint32(hdr[offFreeListSize:])
	if flPos == NilPosition {
		return nil
	}

	b, ok, err := s.Read(flPos, flSize)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(RetCCorrupt, flPos, "free list record outside heap", nil)
	}
	if err := s.free.decode(b); err != nil {
		return NewError(RetCCorrupt, flPos, "cannot decode free list", err)
	}
	s.listSpan = span{pos: flPos, size: flSize}

	// forget the record in the header so it is never loaded twice
	var zero [12]byte
	if _, err := s.medium.WriteAt(zero[:], offFreeListPos); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot reset free list header", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Allocate(size uint32) (Position, error) {
	if size == 0 {
		return NilPosition, NewError(RetCInvalidOperation, NilPosition, "cannot allocate zero bytes", nil)
	}
	if s.closed.Load() {
		return NilPosition, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocations.Inc()
	if pos, ok := s.free.takeBestFit(size, s.minFragment); ok {
		s.reuses.Inc()
		return pos, nil
	}
	return s.growLocked(size)
}

// growLocked appends size bytes to the heap. The new logical size is written to the
// header before the position is handed out, so a reopened store never loses an
// allocation to trailing slack of the medium.
//
// Thread-safety: the caller must hold s.mu.
func (s *storeImpl) growLocked(size uint32) (Position, error) {
	pos := s.size.Load()
	newSize := pos + uint64(size)
	if newSize > MaxSize {
		return NilPosition, NewError(RetCCapacity, Position(pos), fmt.Sprintf("heap limit of %d bytes reached", uint64(MaxSize)), nil)
	}

	if err := s.medium.Grow(int64(newSize)); err != nil {
		return NilPosition, NewError(RetCCapacity, Position(pos), fmt.Sprintf("cannot grow %s medium to %d bytes", s.medium.Backend(), newSize), err)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], newSize)
	if _, err := s.medium.WriteAt(buf[:], offSize); err != nil {
		return NilPosition, NewError(RetCIOError, NilPosition, "cannot record heap size", err)
	}

	s.size.Store(newSize)
	s.grownBytes.Add(int(size))
	return Position(pos), nil
}

func (s *storeImpl) Deallocate(pos Position, size uint32) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if size == 0 || pos < HeaderSize || uint64(pos)+uint64(size) > s.size.Load() {
		return NewError(RetCInvalidOperation, pos, fmt.Sprintf("cannot free span of %d bytes", size), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deallocations.Inc()
	s.free.add(pos, size)
	return nil
}

func (s *storeImpl) Read(pos Position, size uint32) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	if pos < HeaderSize || uint64(pos)+uint64(size) > s.size.Load() {
		return nil, false, nil
	}

	s.reads.Inc()
	b := make([]byte, size)
	if _, err := s.medium.ReadAt(b, int64(pos)); err != nil {
		return nil, false, NewError(RetCIOError, pos, fmt.Sprintf("cannot read %d bytes", size), err)
	}
	return b, true, nil
}

func (s *storeImpl) Write(b []byte, pos Position) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if pos < HeaderSize || uint64(pos)+uint64(len(b)) > s.size.Load() {
		return 0, NewError(RetCInvalidOperation, pos, fmt.Sprintf("write of %d bytes outside heap of %d bytes", len(b), s.size.Load()), nil)
	}

	s.writes.Inc()
	n, err := s.medium.WriteAt(b, int64(pos))
	if err != nil {
		return n, NewError(RetCIOError, pos, fmt.Sprintf("cannot write %d bytes", len(b)), err)
	}
	return n, nil
}

func (s *storeImpl) Root() Position {
	return Position(s.root.Load())
}

func (s *storeImpl) SetRoot(pos Position) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pos))
	if _, err := s.medium.WriteAt(buf[:], offRoot); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot write root", err)
	}
	s.root.Store(uint64(pos))
	return nil
}

func (s *storeImpl) Size() uint64 {
	return s.size.Load()
}

func (s *storeImpl) Commit() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.medium.Sync(); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot sync medium", err)
	}
	return nil
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistFreeListLocked(); err != nil {
		plog.Errorf("cannot persist free list: %v", err)
		_ = s.medium.Close()
		return err
	}
	if err := s.medium.Sync(); err != nil {
		_ = s.medium.Close()
		return NewError(RetCIOError, NilPosition, "cannot sync medium", err)
	}
	if err := s.medium.Close(); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot close medium", err)
	}
	plog.Debugf("closed %s store (size=%d)", s.medium.Backend(), s.size.Load())
	return nil
}

// persistFreeListLocked writes the free list and records it in the header. The
// record loaded at open is rewritten in place while the list still fits into it.
// Otherwise that span joins the list and a new record is appended to the heap,
// never taken from the list it describes.
//
// Thread-safety: the caller must hold s.mu.
func (s *storeImpl) persistFreeListLocked() error {
	if s.free.len() == 0 && s.listSpan.pos == NilPosition {
		return nil
	}

	rec := s.listSpan
	if rec.pos == NilPosition || int(rec.size) < s.free.encodedSize() {
		if rec.pos != NilPosition {
			s.free.add(rec.pos, rec.size)
		}
		size := uint32(s.free.encodedSize())
		pos, err := s.growLocked(size)
		if err != nil {
			return err
		}
		rec = span{pos: pos, size: size}
	}
	s.listSpan = span{}

	b := s.free.encode()
	if _, err := s.medium.WriteAt(b, int64(rec.pos)); err != nil {
		return NewError(RetCIOError, rec.pos, "cannot write free list", err)
	}

	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(rec.pos))
	binary.LittleEndian.PutUint32(hdr[8:], rec.size)
	if _, err := s.medium.WriteAt(hdr[:], offFreeListPos); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot record free list", err)
	}
	return nil
}

func (s *storeImpl) Delete() error {
	s.closed.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Remove(); err != nil {
		return NewError(RetCIOError, NilPosition, "cannot remove medium", err)
	}
	return nil
}

func (s *storeImpl) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Backend:       s.medium.Backend(),
		LogicalSize:   s.size.Load(),
		PhysicalSize:  s.medium.Len(),
		FreeSpans:     s.free.len(),
		FreeBytes:     s.free.bytes,
		Allocations:   s.allocations.Get(),
		Reuses:        s.reuses.Get(),
		Deallocations: s.deallocations.Get(),
	}
}

func (s *storeImpl) Metrics() *metrics.Set {
	return s.metrics
}
