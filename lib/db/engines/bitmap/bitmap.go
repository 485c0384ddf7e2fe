package bitmap

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/internal/sharded"
	"github.com/ValentinKolb/skipstore/lib/db/engines/skiplist"
	"github.com/ValentinKolb/skipstore/lib/db/util"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("bitmap")

const (
	MinLoadFactor = 1
	MaxLoadFactor = 2

	slotSize = 8
	// the slot array is zeroed and scanned in chunks of this many bytes
	chunkSize = 64 << 10
)

// New creates an empty bitmap map in st. opts.LoadFactor must be in
// [MinLoadFactor, MaxLoadFactor]; without opts.Lock a bucket lock with
// lockmgr.DefaultBuckets buckets is used.
func New[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	o := skiplist.CompleteOptions(opts)
	if o.LoadFactor < MinLoadFactor || o.LoadFactor > MaxLoadFactor {
		return nil, fmt.Errorf("%w: bitmap supports %d to %d, got %d", db.ErrInvalidLoadFactor, MinLoadFactor, MaxLoadFactor, o.LoadFactor)
	}

	array, err := allocateArray(st, o.LoadFactor)
	if err != nil {
		return nil, err
	}
	h, err := skiplist.CreateHeader(st, skiplist.KindBitmap, o.LoadFactor, util.GenerateSeed(), array)
	if err != nil {
		return nil, err
	}
	plog.Infof("created bitmap (header=%d, load factor=%d, slots=%d)", h.Position(), o.LoadFactor, slots(o.LoadFactor))
	return newBitmap(st, keys, values, h, o)
}

// Open reopens the bitmap map whose header is at pos. The load factor is read
// from the header; opts.LoadFactor is ignored.
func Open[K, V any](st store.IStore, pos store.Position, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	h, err := skiplist.OpenHeader(st, pos, skiplist.KindBitmap)
	if err != nil {
		return nil, err
	}
	if lf := h.LoadFactor(); lf < MinLoadFactor || lf > MaxLoadFactor {
		return nil, &store.BufferingError{Pos: pos, Expected: "bitmap load factor", Actual: fmt.Sprint(lf)}
	}
	plog.Infof("opened bitmap (header=%d, len=%d)", pos, h.Count())
	return newBitmap(st, keys, values, h, skiplist.CompleteOptions(opts))
}

func newBitmap[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], h *skiplist.Header, o db.Options) (db.IMap[K, V], error) {
	o.LoadFactor = h.LoadFactor()
	if o.Lock == nil {
		o.Lock = lockmgr.NewBucketLock(lockmgr.DefaultBuckets)
	}
	m, err := sharded.New(st, keys, values, h, o, sharded.Config{
		Impl:   db.ImplBitmap,
		Router: &router{st: st, h: h},
		Lock:   o.Lock,
		Log:    plog,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func slots(loadFactor int) uint32 {
	return 1 << (8 * loadFactor)
}

// allocateArray allocates a zeroed slot array. Spans from the free list carry
// old bytes, so the array is always written.
func allocateArray(st store.IStore, loadFactor int) (store.Position, error) {
	size := slots(loadFactor) * slotSize
	pos, err := st.Allocate(size)
	if err != nil {
		return store.NilPosition, err
	}

	zero := make([]byte, min(size, chunkSize))
	for off := uint32(0); off < size; off += uint32(len(zero)) {
		if _, err := st.Write(zero[:min(size-off, uint32(len(zero)))], pos+store.Position(off)); err != nil {
			return store.NilPosition, err
		}
	}
	plog.Debugf("allocated slot array of %d bytes at %d", size, pos)
	return pos, nil
}

// --------------------------------------------------------------------------
// Router
// --------------------------------------------------------------------------

// router maps a shard id directly to its slot in the array.
type router struct {
	st store.IStore
	h  *skiplist.Header
}

func (r *router) Slot(id uint32, _ bool) (store.Position, error) {
	if id >= slots(r.h.LoadFactor()) {
		return store.NilPosition, fmt.Errorf("shard %d out of range for load factor %d", id, r.h.LoadFactor())
	}
	return r.h.First() + store.Position(id)*slotSize, nil
}

func (r *router) Scan(fn func(id uint32)) error {
	first, size := r.h.First(), slots(r.h.LoadFactor())*slotSize
	for off := uint32(0); off < size; off += chunkSize {
		n := min(size-off, chunkSize)
		b, ok, err := r.st.Read(first+store.Position(off), n)
		if err != nil {
			return err
		}
		if !ok {
			return &store.BufferingError{Pos: first, Expected: "bitmap slot array", Actual: "position outside heap"}
		}
		for i := uint32(0); i < n; i += slotSize {
			if binary.LittleEndian.Uint64(b[i:]) != 0 {
				fn((off + i) / slotSize)
			}
		}
	}
	return nil
}

func (r *router) Reset() (store.Position, error) {
	return allocateArray(r.st, r.h.LoadFactor())
}

func (r *router) Nodes() int64 { return 1 }
