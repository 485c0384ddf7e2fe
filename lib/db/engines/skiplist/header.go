package skiplist

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/skipstore/lib/store"
)

// Kind identifies the implementation that owns a header.
type Kind uint8

const (
	KindSkipList Kind = iota + 1
	KindBitmap
	KindTrie
)

func (k Kind) String() string {
	switch k {
	case KindSkipList:
		return "skiplist header"
	case KindBitmap:
		return "bitmap header"
	case KindTrie:
		return "trie header"
	default:
		return "unknown header"
	}
}

// Header record layout (HeaderSize bytes):
//
//	[0]      kind
//	[1]      load factor
//	[8:16]   seed
//	[16:24]  first (top head, slot array or root matrix node)
//	[24:32]  record count
const (
	HeaderSize = 32

	hdrKind       = 0
	hdrLoadFactor = 1
	hdrSeed       = 8
	hdrFirst      = 16
	hdrCount      = 24
)

// Header is the persisted metadata of one index. For a plain skip list it is
// also the anchor of the list.
//
// Thread-safety: all methods are safe for concurrent use.
type Header struct {
	st         store.IStore
	pos        store.Position
	kind       Kind
	loadFactor int
	seed       uint64

	mu    sync.Mutex // serializes writes of first and count
	first atomic.Uint64
	count atomic.Uint64
}

// CreateHeader allocates and writes a new header.
func CreateHeader(st store.IStore, kind Kind, loadFactor int, seed uint64, first store.Position) (*Header, error) {
	pos, err := st.Allocate(HeaderSize)
	if err != nil {
		return nil, err
	}

	b := make([]byte, HeaderSize)
	b[hdrKind] = byte(kind)
	b[hdrLoadFactor] = byte(loadFactor)
	binary.LittleEndian.PutUint64(b[hdrSeed:], seed)
	binary.LittleEndian.PutUint64(b[hdrFirst:], uint64(first))
	if _, err := st.Write(b, pos); err != nil {
		return nil, err
	}

	h := &Header{st: st, pos: pos, kind: kind, loadFactor: loadFactor, seed: seed}
	h.first.Store(uint64(first))
	return h, nil
}

// OpenHeader reads the header at pos. A header of another kind is a buffering fault.
func OpenHeader(st store.IStore, pos store.Position, kind Kind) (*Header, error) {
	b, ok, err := st.Read(pos, HeaderSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &store.BufferingError{Pos: pos, Expected: kind.String(), Actual: "position outside heap"}
	}
	if got := Kind(b[hdrKind]); got != kind {
		return nil, &store.BufferingError{Pos: pos, Expected: kind.String(), Actual: got.String()}
	}

	h := &Header{
		st:         st,
		pos:        pos,
		kind:       kind,
		loadFactor: int(b[hdrLoadFactor]),
		seed:       binary.LittleEndian.Uint64(b[hdrSeed:]),
	}
	h.first.Store(binary.LittleEndian.Uint64(b[hdrFirst:]))
	h.count.Store(binary.LittleEndian.Uint64(b[hdrCount:]))
	return h, nil
}

func (h *Header) Position() store.Position { return h.pos }

func (h *Header) Kind() Kind { return h.kind }

func (h *Header) LoadFactor() int { return h.loadFactor }

func (h *Header) Seed() uint64 { return h.seed }

func (h *Header) Count() uint64 { return h.count.Load() }

// First returns the first structural position of the index.
func (h *Header) First() store.Position { return store.Position(h.first.Load()) }

// SetFirst persists a new first position.
func (h *Header) SetFirst(pos store.Position) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := writePos(h.st, h.pos+hdrFirst, pos); err != nil {
		return err
	}
	h.first.Store(uint64(pos))
	return nil
}

// Head and SetHead make the header the anchor of a plain skip list.
func (h *Header) Head() (store.Position, error) { return h.First(), nil }

func (h *Header) SetHead(pos store.Position) error { return h.SetFirst(pos) }

// AddCount adjusts the record count by delta and persists it.
func (h *Header) AddCount(delta int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count.Load() + uint64(delta)
	if err := writePos(h.st, h.pos+hdrCount, store.Position(n)); err != nil {
		return err
	}
	h.count.Store(n)
	return nil
}

// Reset installs a new first position and a zero count in one write.
func (h *Header) Reset(first store.Position) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b [16]byte
	binary.LittleEndian.PutUint64(b[:], uint64(first))
	if _, err := h.st.Write(b[:], h.pos+hdrFirst); err != nil {
		return err
	}
	h.first.Store(uint64(first))
	h.count.Store(0)
	return nil
}
