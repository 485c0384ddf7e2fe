package store

import (
	"encoding/binary"
	"fmt"

	"github.com/google/btree"
)

// span is a reclaimed byte range. Spans are ordered by size first so the tree can
// answer "smallest span that still fits" with a single ascending seek.
type span struct {
	pos  Position
	size uint32
}

func (s span) Less(than btree.Item) bool {
	o := than.(span)
	if s.size != o.size {
		return s.size < o.size
	}
	return s.pos < o.pos
}

// freeList tracks reclaimed spans. It is not thread-safe; the store guards it with
// its allocator lock.
type freeList struct {
	tree  *btree.BTree
	bytes uint64
}

func newFreeList() *freeList {
	return &freeList{tree: btree.New(32)}
}

func (fl *freeList) add(pos Position, size uint32) {
	if fl.tree.ReplaceOrInsert(span{pos: pos, size: size}) == nil {
		fl.bytes += uint64(size)
	}
}

func (fl *freeList) len() int { return fl.tree.Len() }

// takeBestFit removes the smallest span of at least size bytes. A remainder larger
// than minFragment goes back into the list; smaller remainders stay with the
// returned span.
func (fl *freeList) takeBestFit(size, minFragment uint32) (Position, bool) {
	var (
		found span
		ok    bool
	)
	fl.tree.AscendGreaterOrEqual(span{size: size}, func(i btree.Item) bool {
		found, ok = i.(span), true
		return false
	})
	if !ok {
		return NilPosition, false
	}

	fl.tree.Delete(found)
	fl.bytes -= uint64(found.size)

	if rest := found.size - size; rest > minFragment {
		fl.add(found.pos+Position(size), rest)
	}
	return found.pos, true
}

// --------------------------------------------------------------------------
// Persistence of the free list
// --------------------------------------------------------------------------

// Encoded layout: [count u32] followed by count x [pos u64][size u32]. The record
// may be followed by unused bytes of its span.
const freeSpanEncodedSize = 12

func (fl *freeList) encodedSize() int {
	return 4 + fl.len()*freeSpanEncodedSize
}

func (fl *freeList) encode() []byte {
	out := make([]byte, fl.encodedSize())
	binary.LittleEndian.PutUint32(out, uint32(fl.len()))
	off := 4
	fl.tree.Ascend(func(i btree.Item) bool {
		s := i.(span)
		binary.LittleEndian.PutUint64(out[off:], uint64(s.pos))
		binary.LittleEndian.PutUint32(out[off+8:], s.size)
		off += freeSpanEncodedSize
		return true
	})
	return out
}

func (fl *freeList) decode(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("free list record too short (%d bytes)", len(b))
	}
	count := int(binary.LittleEndian.Uint32(b))
	if len(b) < 4+count*freeSpanEncodedSize {
		return fmt.Errorf("free list record holds %d bytes, expected %d", len(b), 4+count*freeSpanEncodedSize)
	}
	off := 4
	for i := 0; i < count; i++ {
		fl.add(
			Position(binary.LittleEndian.Uint64(b[off:])),
			binary.LittleEndian.Uint32(b[off+8:]),
		)
		off += freeSpanEncodedSize
	}
	return nil
}
