package skiplist

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand"

	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Anchor
// --------------------------------------------------------------------------

// Anchor holds the position of the top head of one skip list. The map header, a
// slot of the bitmap array and a slot of a trie matrix node are anchors.
type Anchor interface {
	// Head returns the top head (NilPosition for an empty skip list).
	Head() (store.Position, error)
	// SetHead replaces the top head.
	SetHead(pos store.Position) error
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// FreeFunc receives the spans of unlinked nodes.
type FreeFunc func(pos store.Position, size uint32) error

// Engine implements the skip list algorithms on top of a store. It keeps no state
// about individual skip lists: every operation receives the anchor of the list
// it works on.
//
// Thread-safety: the engine performs no locking. Callers must hold a read lock
// for Get, Above, Below, Range and ByReference and a write lock for Put, Remove
// and Clear on the anchor they pass.
type Engine[K any] struct {
	st       store.IStore
	keys     serializer.IKeyCodec[K]
	maxLevel int
	free     FreeFunc
	levels   gometrics.Histogram
}

// NewEngine creates an engine. free may be nil, in which case unlinked nodes are
// left in the store; levels may be nil.
func NewEngine[K any](st store.IStore, keys serializer.IKeyCodec[K], maxLevel int, free FreeFunc, levels gometrics.Histogram) *Engine[K] {
	if maxLevel <= 0 || maxLevel > 63 {
		maxLevel = 24
	}
	if levels == nil {
		levels = gometrics.NilHistogram{}
	}
	return &Engine[K]{
		st:       st,
		keys:     keys,
		maxLevel: maxLevel,
		free:     free,
		levels:   levels,
	}
}

// randomLevel flips fair coins until one fails: level l is chosen with
// probability 2^-(l+1), capped at maxLevel.
func (e *Engine[K]) randomLevel() int {
	return min(bits.TrailingZeros64(rand.Uint64()), e.maxLevel)
}

func (e *Engine[K]) decodeKey(n *node) (K, error) {
	var k K
	if err := e.keys.Deserialize(n.key, &k); err != nil {
		return k, &store.BufferingError{Pos: n.pos, Expected: fmt.Sprintf("key %T", k), Err: err}
	}
	return k, nil
}

func (e *Engine[K]) compare(n *node, key K) (int, error) {
	k, err := e.decodeKey(n)
	if err != nil {
		return 0, err
	}
	return e.keys.Compare(k, key), nil
}

// --------------------------------------------------------------------------
// Traversal
// --------------------------------------------------------------------------

// path is the result of a search. preds[l] is the last node on level l whose key
// is smaller than the searched key (a head if there is none). matches[l] is the
// node of the searched key on level l, if the key reaches that level.
type path struct {
	head    store.Position
	preds   []*node
	matches []*node
	found   *node // the topmost match
}

// find walks from the top head down to level 0. With stopAtMatch the walk ends at
// the first node holding key and only found is reliable.
func (e *Engine[K]) find(a Anchor, key K, stopAtMatch bool) (*path, error) {
	headPos, err := a.Head()
	if err != nil || headPos == store.NilPosition {
		return &path{}, err
	}
	cur, err := readNode(e.st, headPos)
	if err != nil {
		return nil, err
	}
	if !cur.isHead() {
		return nil, &store.BufferingError{Pos: headPos, Expected: "skip list head", Actual: "record node"}
	}

	top := int(cur.level)
	p := &path{head: headPos, preds: make([]*node, top+1), matches: make([]*node, top+1)}
	for l := top; l >= 0; l-- {
		for cur.next != store.NilPosition {
			nxt, err := readNode(e.st, cur.next)
			if err != nil {
				return nil, err
			}
			c, err := e.compare(nxt, key)
			if err != nil {
				return nil, err
			}
			if c < 0 {
				cur = nxt
				continue
			}
			if c == 0 {
				p.matches[l] = nxt
				if p.found == nil {
					p.found = nxt
				}
				if stopAtMatch {
					p.preds[l] = cur
					return p, nil
				}
			}
			break
		}
		p.preds[l] = cur

		if l > 0 {
			if cur, err = readNode(e.st, cur.down); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// bottomHead returns the level-0 head of the skip list (nil if it is empty).
func (e *Engine[K]) bottomHead(a Anchor) (*node, error) {
	pos, err := a.Head()
	if err != nil || pos == store.NilPosition {
		return nil, err
	}
	n, err := readNode(e.st, pos)
	for err == nil && n.down != store.NilPosition {
		n, err = readNode(e.st, n.down)
	}
	return n, err
}

// walk visits the level-0 nodes following start until fn returns false.
func (e *Engine[K]) walk(start *node, fn func(n *node) (bool, error)) error {
	for pos := start.next; pos != store.NilPosition; {
		n, err := readNode(e.st, pos)
		if err != nil {
			return err
		}
		cont, err := fn(n)
		if err != nil || !cont {
			return err
		}
		pos = n.next
	}
	return nil
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Get returns the record of key.
func (e *Engine[K]) Get(a Anchor, key K) (Record, bool, error) {
	p, err := e.find(a, key, true)
	if err != nil || p.found == nil {
		return Record{}, false, err
	}
	return p.found.rec, true, nil
}

// Put links rec to key. If key exists, the record fields of all its nodes are
// rewritten and the previous record is returned with replaced=true; the record id
// does not change. The caller owns both records.
func (e *Engine[K]) Put(a Anchor, key K, rec Record) (old Record, replaced bool, err error) {
	p, err := e.find(a, key, true)
	if err != nil {
		return Record{}, false, err
	}

	if p.found != nil {
		old = p.found.rec
		for n := p.found; ; {
			if err := n.setRecord(e.st, rec.Pos, rec.Size); err != nil {
				return Record{}, false, err
			}
			if n.down == store.NilPosition {
				break
			}
			if n, err = readNode(e.st, n.down); err != nil {
				return Record{}, false, err
			}
		}
		return old, true, nil
	}

	kb, err := e.keys.Serialize(key)
	if err != nil {
		return Record{}, false, fmt.Errorf("cannot serialize key: %w", err)
	}

	level := e.randomLevel()
	preds, err := e.raise(a, p.head, p.preds, level)
	if err != nil {
		return Record{}, false, err
	}

	// bottom-up, so every node reachable from above already has its down chain
	var (
		down store.Position
		id   uint64
	)
	size := uint32(recordOverhead + len(kb))
	for l := 0; l <= level; l++ {
		pos, err := e.st.Allocate(size)
		if err != nil {
			return Record{}, false, err
		}
		if l == 0 {
			id = uint64(pos)
		}
		pred := preds[l]
		b := encodeRecordNode(kb, int8(l), pred.next, down, Record{Pos: rec.Pos, Size: rec.Size, ID: id})
		if _, err := e.st.Write(b, pos); err != nil {
			return Record{}, false, err
		}
		if err := pred.setNext(e.st, pos); err != nil {
			return Record{}, false, err
		}
		down = pos
	}
	e.levels.Update(int64(level))
	return Record{ID: id}, false, nil
}

// raise makes sure the skip list has heads up to level and returns the
// predecessors for every level. New heads are linked above the current top and
// the anchor is moved to the new top head.
func (e *Engine[K]) raise(a Anchor, top store.Position, preds []*node, level int) ([]*node, error) {
	if len(preds) > level {
		return preds, nil
	}

	below := top
	for l := len(preds); l <= level; l++ {
		b := encodeHead(int8(l), store.NilPosition, below)
		pos, err := e.st.Allocate(headSize)
		if err != nil {
			return nil, err
		}
		if _, err := e.st.Write(b, pos); err != nil {
			return nil, err
		}
		preds = append(preds, &node{pos: pos, size: headSize, level: int8(l), down: below})
		below = pos
	}
	if err := a.SetHead(below); err != nil {
		return nil, err
	}
	return preds, nil
}

// Remove unlinks every node of key and tombstones its level-0 node. The returned
// record (with the id the key had) is owned by the caller.
func (e *Engine[K]) Remove(a Anchor, key K) (Record, bool, error) {
	p, err := e.find(a, key, false)
	if err != nil || p.found == nil {
		return Record{}, false, err
	}

	// top-down, a reader never descends into an unlinked node
	for l := len(p.matches) - 1; l >= 0; l-- {
		if m := p.matches[l]; m != nil {
			if err := p.preds[l].setNext(e.st, m.next); err != nil {
				return Record{}, false, err
			}
		}
	}

	bottom := p.matches[0]
	if bottom == nil {
		return Record{}, false, &store.BufferingError{Pos: p.found.pos, Expected: "level 0 node", Actual: "key missing on level 0"}
	}
	rec := bottom.rec
	if err := bottom.tombstone(e.st); err != nil {
		return Record{}, false, err
	}

	if e.free != nil {
		for _, m := range p.matches {
			if m == nil {
				continue
			}
			if err := e.free(m.pos, m.size); err != nil {
				return rec, true, err
			}
		}
	}
	return rec, true, nil
}

// Clear orphans the whole skip list by resetting its anchor.
func (e *Engine[K]) Clear(a Anchor) error {
	return a.SetHead(store.NilPosition)
}

// Above calls fn in ascending order for every key > key (>= if inclusive).
func (e *Engine[K]) Above(a Anchor, key K, inclusive bool, fn func(key K, rec Record) bool) error {
	p, err := e.find(a, key, false)
	if err != nil || len(p.preds) == 0 {
		return err
	}
	return e.walk(p.preds[0], func(n *node) (bool, error) {
		k, err := e.decodeKey(n)
		if err != nil {
			return false, err
		}
		if !inclusive && e.keys.Compare(k, key) == 0 {
			return true, nil
		}
		return fn(k, n.rec), nil
	})
}

// Below calls fn in ascending order for every key < key (<= if inclusive).
func (e *Engine[K]) Below(a Anchor, key K, inclusive bool, fn func(key K, rec Record) bool) error {
	head, err := e.bottomHead(a)
	if err != nil || head == nil {
		return err
	}
	return e.walk(head, func(n *node) (bool, error) {
		k, err := e.decodeKey(n)
		if err != nil {
			return false, err
		}
		c := e.keys.Compare(k, key)
		if c > 0 || (c == 0 && !inclusive) {
			return false, nil
		}
		return fn(k, n.rec), nil
	})
}

// Range calls fn in ascending key order until it returns false.
func (e *Engine[K]) Range(a Anchor, fn func(key K, rec Record) bool) error {
	head, err := e.bottomHead(a)
	if err != nil || head == nil {
		return err
	}
	return e.walk(head, func(n *node) (bool, error) {
		k, err := e.decodeKey(n)
		if err != nil {
			return false, err
		}
		return fn(k, n.rec), nil
	})
}

// ByReference resolves a record id. Anything but a live level-0 node carrying the
// same id (a removed key, a reused span, a random number) is not found.
func (e *Engine[K]) ByReference(ref uint64) (K, Record, bool, error) {
	var zero K
	if ref < store.HeaderSize || ref >= e.st.Size() {
		return zero, Record{}, false, nil
	}

	n, err := readNode(e.st, store.Position(ref))
	var bufErr *store.BufferingError
	if errors.As(err, &bufErr) {
		return zero, Record{}, false, nil
	}
	if err != nil {
		return zero, Record{}, false, err
	}
	if n.isHead() || n.level != 0 || n.rec.ID != ref {
		return zero, Record{}, false, nil
	}

	k, err := e.decodeKey(n)
	if err != nil {
		return zero, Record{}, false, nil
	}
	return k, n.rec, true, nil
}

// Height returns the level of the top head (-1 for an empty skip list).
func (e *Engine[K]) Height(a Anchor) (int, error) {
	pos, err := a.Head()
	if err != nil || pos == store.NilPosition {
		return -1, err
	}
	n, err := readNode(e.st, pos)
	if err != nil {
		return -1, err
	}
	return int(n.level), nil
}
