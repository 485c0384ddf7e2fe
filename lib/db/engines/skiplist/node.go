package skiplist

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/skipstore/lib/store"
)

// Node layouts (little endian):
//
//	head:   [size u32][level i8][next u64][down u64]
//	record: [size u32][key ...][level i8][next u64][down u64][recPos u64][recSize u32][recID u64]
//
// size covers the whole node. A head is always headSize bytes, a record node is
// at least recordOverhead bytes, so the size alone tells both kinds apart.
const (
	headSize       = 4 + 1 + 8 + 8
	recordTail     = 1 + 8 + 8 + 8 + 4 + 8
	recordOverhead = 4 + recordTail

	// nodes are read with one speculative read of this size first
	readAhead = 96

	// relative to the start of the tail (the level byte)
	tailNext    = 1
	tailDown    = 9
	tailRecPos  = 17
	tailRecSize = 25
	tailRecID   = 33
)

// Record locates the value of a key.
type Record struct {
	Pos  store.Position
	Size uint32
	// ID is the stable reference of the record: the position of the level-0 node.
	ID uint64
}

// node is the decoded form of a head or record node.
type node struct {
	pos   store.Position
	size  uint32
	key   []byte // nil for heads
	level int8
	next  store.Position
	down  store.Position
	rec   Record
}

func (n *node) isHead() bool { return n.size == headSize }

// tail returns the position of the level byte of n.
func (n *node) tail() store.Position {
	if n.isHead() {
		return n.pos + 4
	}
	return n.pos + 4 + store.Position(len(n.key))
}

func encodeHead(level int8, next, down store.Position) []byte {
	b := make([]byte, headSize)
	binary.LittleEndian.PutUint32(b, headSize)
	b[4] = byte(level)
	binary.LittleEndian.PutUint64(b[4+tailNext:], uint64(next))
	binary.LittleEndian.PutUint64(b[4+tailDown:], uint64(down))
	return b
}

func encodeRecordNode(key []byte, level int8, next, down store.Position, rec Record) []byte {
	b := make([]byte, recordOverhead+len(key))
	binary.LittleEndian.PutUint32(b, uint32(len(b)))
	copy(b[4:], key)
	t := b[4+len(key):]
	t[0] = byte(level)
	binary.LittleEndian.PutUint64(t[tailNext:], uint64(next))
	binary.LittleEndian.PutUint64(t[tailDown:], uint64(down))
	binary.LittleEndian.PutUint64(t[tailRecPos:], uint64(rec.Pos))
	binary.LittleEndian.PutUint32(t[tailRecSize:], rec.Size)
	binary.LittleEndian.PutUint64(t[tailRecID:], rec.ID)
	return b
}

func decodeNode(pos store.Position, b []byte) (*node, error) {
	size := binary.LittleEndian.Uint32(b)
	if int(size) != len(b) || (size != headSize && size < recordOverhead) {
		return nil, &store.BufferingError{Pos: pos, Expected: "skip list node", Actual: fmt.Sprintf("%d bytes", size)}
	}

	n := &node{pos: pos, size: size}
	var t []byte
	if size == headSize {
		t = b[4:]
	} else {
		n.key = b[4 : 4+size-recordOverhead]
		t = b[4+len(n.key):]
	}

	n.level = int8(t[0])
	n.next = store.Position(binary.LittleEndian.Uint64(t[tailNext:]))
	n.down = store.Position(binary.LittleEndian.Uint64(t[tailDown:]))
	if n.isHead() {
		return n, nil
	}
	n.rec = Record{
		Pos:  store.Position(binary.LittleEndian.Uint64(t[tailRecPos:])),
		Size: binary.LittleEndian.Uint32(t[tailRecSize:]),
		ID:   binary.LittleEndian.Uint64(t[tailRecID:]),
	}
	return n, nil
}

// readNode loads the node at pos. A position outside the heap is reported as a
// buffering fault because a link pointed there.
func readNode(st store.IStore, pos store.Position) (*node, error) {
	avail := st.Size() - uint64(pos)
	if uint64(pos) >= st.Size() || avail < 4 {
		return nil, &store.BufferingError{Pos: pos, Expected: "skip list node", Actual: "position outside heap"}
	}

	b, ok, err := st.Read(pos, uint32(min(avail, readAhead)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &store.BufferingError{Pos: pos, Expected: "skip list node", Actual: "position outside heap"}
	}

	size := binary.LittleEndian.Uint32(b)
	if size != headSize && size < recordOverhead {
		return nil, &store.BufferingError{Pos: pos, Expected: "skip list node", Actual: fmt.Sprintf("%d bytes", size)}
	}
	switch {
	case int(size) < len(b):
		b = b[:size]
	case int(size) > len(b):
		if b, ok, err = st.Read(pos, size); err != nil {
			return nil, err
		} else if !ok {
			return nil, &store.BufferingError{Pos: pos, Expected: "skip list node", Actual: fmt.Sprintf("%d bytes beyond heap", size)}
		}
	}
	return decodeNode(pos, b)
}

// --------------------------------------------------------------------------
// Field updates
// --------------------------------------------------------------------------

func writePos(st store.IStore, at, value store.Position) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(value))
	_, err := st.Write(b[:], at)
	return err
}

// ReadPosition reads a position stored at at, e.g. a slot holding a top head.
func ReadPosition(st store.IStore, at store.Position) (store.Position, error) {
	b, ok, err := st.Read(at, 8)
	if err != nil {
		return store.NilPosition, err
	}
	if !ok {
		return store.NilPosition, &store.BufferingError{Pos: at, Expected: "position", Actual: "position outside heap"}
	}
	return store.Position(binary.LittleEndian.Uint64(b)), nil
}

// WritePosition stores pos at at.
func WritePosition(st store.IStore, at, pos store.Position) error {
	return writePos(st, at, pos)
}

func (n *node) setNext(st store.IStore, next store.Position) error {
	if err := writePos(st, n.tail()+tailNext, next); err != nil {
		return err
	}
	n.next = next
	return nil
}

func (n *node) setRecord(st store.IStore, pos store.Position, size uint32) error {
	var b [12]byte
	binary.LittleEndian.PutUint64(b[:], uint64(pos))
	binary.LittleEndian.PutUint32(b[8:], size)
	if _, err := st.Write(b[:], n.tail()+tailRecPos); err != nil {
		return err
	}
	n.rec.Pos, n.rec.Size = pos, size
	return nil
}

// tombstone clears the record id so references to this node stop resolving.
func (n *node) tombstone(st store.IStore) error {
	if err := writePos(st, n.tail()+tailRecID, 0); err != nil {
		return err
	}
	n.rec.ID = 0
	return nil
}
