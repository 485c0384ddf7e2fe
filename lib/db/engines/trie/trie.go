package trie

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/internal/sharded"
	"github.com/ValentinKolb/skipstore/lib/db/engines/skiplist"
	"github.com/ValentinKolb/skipstore/lib/db/util"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("trie")

const (
	MinLoadFactor = 1
	MaxLoadFactor = util.MaxDigits

	fanOut = 256
	// matrix node layout: [own position u64][fanOut x child u64]
	matrixSize = 8 + fanOut*8
)

// New creates an empty trie map in st. opts.LoadFactor must be in
// [MinLoadFactor, MaxLoadFactor]; without opts.Lock a dispatch lock is used.
func New[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	o := skiplist.CompleteOptions(opts)
	if o.LoadFactor < MinLoadFactor || o.LoadFactor > MaxLoadFactor {
		return nil, fmt.Errorf("%w: trie supports %d to %d, got %d", db.ErrInvalidLoadFactor, MinLoadFactor, MaxLoadFactor, o.LoadFactor)
	}

	root, err := allocateMatrix(st)
	if err != nil {
		return nil, err
	}
	h, err := skiplist.CreateHeader(st, skiplist.KindTrie, o.LoadFactor, util.GenerateSeed(), root)
	if err != nil {
		return nil, err
	}
	plog.Infof("created trie (header=%d, load factor=%d)", h.Position(), o.LoadFactor)
	return newTrie(st, keys, values, h, o)
}

// Open reopens the trie map whose header is at pos. The load factor is read from
// the header; opts.LoadFactor is ignored.
func Open[K, V any](st store.IStore, pos store.Position, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	h, err := skiplist.OpenHeader(st, pos, skiplist.KindTrie)
	if err != nil {
		return nil, err
	}
	if lf := h.LoadFactor(); lf < MinLoadFactor || lf > MaxLoadFactor {
		return nil, &store.BufferingError{Pos: pos, Expected: "trie load factor", Actual: fmt.Sprint(lf)}
	}
	plog.Infof("opened trie (header=%d, len=%d)", pos, h.Count())
	return newTrie(st, keys, values, h, skiplist.CompleteOptions(opts))
}

func newTrie[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], h *skiplist.Header, o db.Options) (db.IMap[K, V], error) {
	o.LoadFactor = h.LoadFactor()
	if o.Lock == nil {
		o.Lock = lockmgr.NewDispatchLock()
	}
	m, err := sharded.New(st, keys, values, h, o, sharded.Config{
		Impl:   db.ImplTrie,
		Router: &router{st: st, h: h, structure: lockmgr.NewDispatchLock()},
		Lock:   o.Lock,
		Log:    plog,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Matrix nodes
// --------------------------------------------------------------------------

func allocateMatrix(st store.IStore) (store.Position, error) {
	pos, err := st.Allocate(matrixSize)
	if err != nil {
		return store.NilPosition, err
	}
	b := make([]byte, matrixSize)
	binary.LittleEndian.PutUint64(b, uint64(pos))
	if _, err := st.Write(b, pos); err != nil {
		return store.NilPosition, err
	}
	return pos, nil
}

// readMatrix returns the child slots of the matrix node at pos.
func readMatrix(st store.IStore, pos store.Position) ([]byte, error) {
	b, ok, err := st.Read(pos, matrixSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &store.BufferingError{Pos: pos, Expected: "matrix node", Actual: "position outside heap"}
	}
	if own := store.Position(binary.LittleEndian.Uint64(b)); own != pos {
		return nil, &store.BufferingError{Pos: pos, Expected: "matrix node", Actual: fmt.Sprintf("node of position %d", own)}
	}
	return b[8:], nil
}

func childSlot(node store.Position, digit int) store.Position {
	return node + 8 + store.Position(digit)*8
}

// --------------------------------------------------------------------------
// Router
// --------------------------------------------------------------------------

// router walks the matrix nodes from the root down to the slot of a shard.
type router struct {
	st        store.IStore
	h         *skiplist.Header
	structure lockmgr.ILockStrategy
	nodes     atomic.Int64
}

func (r *router) Slot(id uint32, create bool) (store.Position, error) {
	lf := r.h.LoadFactor()
	node := r.h.First()
	for depth := 0; depth < lf-1; depth++ {
		child, err := r.child(node, util.ShardDigit(id, lf, depth), create)
		if err != nil || child == store.NilPosition {
			return store.NilPosition, err
		}
		node = child
	}
	return childSlot(node, util.ShardDigit(id, lf, lf-1)), nil
}

// child returns the matrix node below slot digit of node, creating it if asked.
func (r *router) child(node store.Position, digit int, create bool) (child store.Position, err error) {
	slot := childSlot(node, digit)
	err = r.structure.Read(uint64(node), func() (err error) {
		child, err = skiplist.ReadPosition(r.st, slot)
		return err
	})
	if err != nil || child != store.NilPosition || !create {
		return child, err
	}

	err = r.structure.Write(uint64(node), func() (err error) {
		// another shard below the same node may have been faster
		if child, err = skiplist.ReadPosition(r.st, slot); err != nil || child != store.NilPosition {
			return err
		}
		if child, err = allocateMatrix(r.st); err != nil {
			return err
		}
		r.nodes.Add(1)
		plog.Debugf("allocated matrix node %d below %d[%d]", child, node, digit)
		return skiplist.WritePosition(r.st, slot, child)
	})
	return child, err
}

func (r *router) Scan(fn func(id uint32)) error {
	return r.scan(r.h.First(), 0, 0, fn)
}

func (r *router) scan(node store.Position, depth int, prefix uint32, fn func(id uint32)) error {
	slots, err := readMatrix(r.st, node)
	if err != nil {
		return err
	}
	r.nodes.Add(1)

	last := depth == r.h.LoadFactor()-1
	for digit := 0; digit < fanOut; digit++ {
		pos := store.Position(binary.LittleEndian.Uint64(slots[digit*8:]))
		if pos == store.NilPosition {
			continue
		}
		id := prefix<<8 | uint32(digit)
		if last {
			fn(id)
			continue
		}
		if err := r.scan(pos, depth+1, id, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *router) Reset() (store.Position, error) {
	root, err := allocateMatrix(r.st)
	if err != nil {
		return store.NilPosition, err
	}
	r.nodes.Store(1)
	return root, nil
}

func (r *router) Nodes() int64 { return r.nodes.Load() }
