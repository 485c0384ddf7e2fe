package sharded

import (
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/skiplist"
	"github.com/ValentinKolb/skipstore/lib/db/util"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

// Router locates the slots that hold the top heads of the shard skip lists.
type Router interface {
	// Slot returns the position of the slot of shard id. If the path to the slot
	// does not exist yet it is created when create is set, otherwise NilPosition
	// is returned.
	Slot(id uint32, create bool) (store.Position, error)
	// Scan calls fn for every shard whose slot holds a head. It is only called
	// while the map is opened.
	Scan(fn func(id uint32)) error
	// Reset builds a new empty structure and returns its first position. It is
	// called with every shard lock held.
	Reset() (store.Position, error)
	// Nodes returns the number of routing nodes (slot arrays or matrix nodes).
	Nodes() int64
}

// shardRef is what the cache remembers about a shard.
type shardRef struct {
	Slot store.Position
	Head store.Position
}

// Config describes the combinator a Map is used for.
type Config struct {
	Impl   db.Implementation
	Router Router
	Lock   lockmgr.ILockStrategy
	Log    logger.ILogger
}

// Map implements db.IMap on a set of skip lists selected by the key hash.
//
// Thread-safety: every operation on a shard runs under the lock of its shard id.
// Operations spanning shards take the shard locks one after another, so they see
// each shard at a different instant.
type Map[K, V any] struct {
	*skiplist.Core[K, V]
	impl   db.Implementation
	router Router
	lock   lockmgr.ILockStrategy
	log    logger.ILogger
	cache  *util.Cache[shardRef]

	// shards with a head, shard ids never leave the set before Clear
	knownMu sync.RWMutex
	known   *roaring.Bitmap
}

// New creates the map for header h. opts must be complete.
func New[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], h *skiplist.Header, opts db.Options, cfg Config) (*Map[K, V], error) {
	m := &Map[K, V]{
		Core:   skiplist.NewCore(st, keys, values, h, opts, cfg.Log),
		impl:   cfg.Impl,
		router: cfg.Router,
		lock:   cfg.Lock,
		log:    cfg.Log,
		cache:  util.NewCache[shardRef](opts.CacheSize),
		known:  roaring.New(),
	}
	if err := cfg.Router.Scan(func(id uint32) { m.known.Add(id) }); err != nil {
		return nil, err
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Shard resolution
// --------------------------------------------------------------------------

// anchor is the anchor of one shard for the duration of a single operation.
type anchor[K, V any] struct {
	m   *Map[K, V]
	id  uint32
	ref shardRef
}

func (a *anchor[K, V]) Head() (store.Position, error) { return a.ref.Head, nil }

func (a *anchor[K, V]) SetHead(pos store.Position) error {
	if err := skiplist.WritePosition(a.m.Store, a.ref.Slot, pos); err != nil {
		return err
	}
	created := a.ref.Head == store.NilPosition
	a.ref.Head = pos
	a.m.cache.Put(uint64(a.id), a.ref)

	if created {
		a.m.knownMu.Lock()
		a.m.known.Add(a.id)
		a.m.knownMu.Unlock()
		a.m.log.Debugf("created skip list of shard %d (head=%d)", a.id, pos)
	}
	return nil
}

// ShardOf returns the shard id of key.
func (m *Map[K, V]) ShardOf(key K) (uint32, error) {
	kb, err := m.Keys.Serialize(key)
	if err != nil {
		return 0, err
	}
	return util.ShardID(util.HashBytes(kb, m.Header.Seed()), m.Header.LoadFactor()), nil
}

// resolve returns the anchor of shard id or nil if the shard does not exist and
// create is false. The caller holds the lock of id.
func (m *Map[K, V]) resolve(id uint32, create bool) (*anchor[K, V], error) {
	if ref, ok := m.cache.Get(uint64(id)); ok {
		return &anchor[K, V]{m: m, id: id, ref: ref}, nil
	}

	slot, err := m.router.Slot(id, create)
	if err != nil || slot == store.NilPosition {
		return nil, err
	}
	head, err := skiplist.ReadPosition(m.Store, slot)
	if err != nil {
		return nil, err
	}

	ref := shardRef{Slot: slot, Head: head}
	m.cache.Put(uint64(id), ref)
	return &anchor[K, V]{m: m, id: id, ref: ref}, nil
}

// shards returns the ids of all shards that have a skip list, in ascending order.
func (m *Map[K, V]) shards() []uint32 {
	m.knownMu.RLock()
	defer m.knownMu.RUnlock()
	return m.known.ToArray()
}

// eachShard calls fn for every existing shard under its read lock, stopping at
// the first error or when fn returns false.
func (m *Map[K, V]) eachShard(fn func(a *anchor[K, V]) (bool, error)) error {
	for _, id := range m.shards() {
		id := id
		cont := true
		err := m.lock.Read(uint64(id), func() error {
			a, err := m.resolve(id, false)
			if err != nil || a == nil {
				return err
			}
			cont, err = fn(a)
			return err
		})
		if err != nil || !cont {
			return err
		}
	}
	return nil
}

// collect runs scan on every shard in parallel and unions the references.
func (m *Map[K, V]) collect(scan func(a *anchor[K, V], add func(ref uint64)) error) (*roaring64.Bitmap, error) {
	var (
		mu     sync.Mutex
		result = roaring64.New()
		g      errgroup.Group
	)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, id := range m.shards() {
		id := id
		g.Go(func() error {
			local := roaring64.New()
			err := m.lock.Read(uint64(id), func() error {
				a, err := m.resolve(id, false)
				if err != nil || a == nil {
					return err
				}
				return scan(a, local.Add)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			result.Or(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IMap)
// --------------------------------------------------------------------------

func (m *Map[K, V]) Get(key K) (v V, ok bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return v, false, err
	}
	id, err := m.ShardOf(key)
	if err != nil {
		return v, false, err
	}
	err = m.lock.Read(uint64(id), func() error {
		a, err := m.resolve(id, false)
		if err != nil || a == nil {
			return err
		}
		v, ok, err = m.Core.Get(a, key)
		return err
	})
	return v, ok, err
}

func (m *Map[K, V]) Put(key K, value V) (old V, replaced bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return old, false, err
	}
	id, err := m.ShardOf(key)
	if err != nil {
		return old, false, err
	}
	err = m.lock.Write(uint64(id), func() error {
		a, err := m.resolve(id, true)
		if err != nil {
			return err
		}
		old, replaced, err = m.Core.Put(a, key, value)
		return err
	})
	return old, replaced, err
}

func (m *Map[K, V]) PutAll(entries []db.Entry[K, V]) error {
	for _, e := range entries {
		if _, _, err := m.Put(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map[K, V]) Remove(key K) (old V, removed bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return old, false, err
	}
	id, err := m.ShardOf(key)
	if err != nil {
		return old, false, err
	}
	err = m.lock.Write(uint64(id), func() error {
		a, err := m.resolve(id, false)
		if err != nil || a == nil {
			return err
		}
		old, removed, err = m.Core.Remove(a, key)
		return err
	})
	return old, removed, err
}

func (m *Map[K, V]) Clear() error {
	if err := m.CheckOpen(); err != nil {
		return err
	}
	return m.lock.All(func() error {
		first, err := m.router.Reset()
		if err != nil {
			return err
		}
		if err := m.Header.Reset(first); err != nil {
			return err
		}
		m.cache.Purge()

		m.knownMu.Lock()
		m.known.Clear()
		m.knownMu.Unlock()

		m.log.Infof("cleared %s (header=%d, first=%d)", m.impl, m.Header.Position(), first)
		return nil
	})
}

func (m *Map[K, V]) ContainsKey(key K) (bool, error) {
	_, ok, err := m.GetRecordReference(key)
	return ok, err
}

func (m *Map[K, V]) ContainsValue(value V) (found bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return false, err
	}
	want, err := m.EncodeValue(value)
	if err != nil {
		return false, err
	}
	err = m.eachShard(func(a *anchor[K, V]) (bool, error) {
		ok, err := m.Core.ContainsValue(a, value, want)
		found = ok
		return !ok, err
	})
	return found, err
}

func (m *Map[K, V]) GetRecordReference(key K) (ref uint64, ok bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return 0, false, err
	}
	id, err := m.ShardOf(key)
	if err != nil {
		return 0, false, err
	}
	err = m.lock.Read(uint64(id), func() error {
		a, err := m.resolve(id, false)
		if err != nil || a == nil {
			return err
		}
		ref, ok, err = m.Reference(a, key)
		return err
	})
	return ref, ok, err
}

// referenceAttempts bounds how often byReference follows a node that moved to
// another shard between reading it and locking its shard.
const referenceAttempts = 4

// byReference resolves ref under the lock of its shard. The node is read once
// without a lock to learn the key (and with it the shard); the read under the
// lock then decides. If the locked read finds another key, the span was reused
// meanwhile and the lookup follows the new key to its shard.
func (m *Map[K, V]) byReference(ref uint64, fn func(rec skiplist.Record) error) (bool, error) {
	key, _, ok, err := m.Engine.ByReference(ref)
	if err != nil || !ok {
		return false, err
	}

	for attempt := 1; ; attempt++ {
		id, err := m.ShardOf(key)
		if err != nil {
			return false, nil
		}

		var found, moved bool
		err = m.lock.Read(uint64(id), func() error {
			k, rec, loaded, err := m.Engine.ByReference(ref)
			if err != nil || !loaded {
				return err
			}
			if m.Keys.Compare(k, key) != 0 {
				key, moved = k, true
				return nil
			}
			found = true
			return fn(rec)
		})
		if err != nil || !moved || attempt == referenceAttempts {
			return found, err
		}
	}
}

func (m *Map[K, V]) GetByReference(ref uint64) (v V, ok bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return v, false, err
	}
	found, err := m.byReference(ref, func(rec skiplist.Record) (err error) {
		v, ok, err = m.ReadValue(rec)
		return err
	})
	return v, found && ok, err
}

func (m *Map[K, V]) GetFieldByReference(ref uint64, field string) (v any, ok bool, err error) {
	if err = m.CheckOpen(); err != nil {
		return nil, false, err
	}
	found, err := m.byReference(ref, func(rec skiplist.Record) (err error) {
		v, ok, err = m.ReadField(rec, field)
		return err
	})
	return v, found && ok, err
}

func (m *Map[K, V]) Above(key K, inclusive bool) (*roaring64.Bitmap, error) {
	if err := m.CheckOpen(); err != nil {
		return nil, err
	}
	return m.collect(func(a *anchor[K, V], add func(uint64)) error {
		return m.Engine.Above(a, key, inclusive, func(_ K, rec skiplist.Record) bool {
			add(rec.ID)
			return true
		})
	})
}

func (m *Map[K, V]) Below(key K, inclusive bool) (*roaring64.Bitmap, error) {
	if err := m.CheckOpen(); err != nil {
		return nil, err
	}
	return m.collect(func(a *anchor[K, V], add func(uint64)) error {
		return m.Engine.Below(a, key, inclusive, func(_ K, rec skiplist.Record) bool {
			add(rec.ID)
			return true
		})
	})
}

// Range visits shard after shard; keys are ordered within a shard only.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) error {
	if err := m.CheckOpen(); err != nil {
		return err
	}
	return m.eachShard(func(a *anchor[K, V]) (bool, error) {
		return m.Core.Range(a, fn)
	})
}

func (m *Map[K, V]) Len() uint64 {
	return m.Header.Count()
}

func (m *Map[K, V]) HeaderPosition() store.Position {
	return m.Header.Position()
}

func (m *Map[K, V]) features() db.Feature {
	f := db.FeatureSharded
	if m.Opts.Fields != nil {
		f |= db.FeatureFieldAccess
	}
	if m.lock.Name() != lockmgr.StrategyNone {
		f |= db.FeatureConcurrent
	}
	return f
}

func (m *Map[K, V]) SupportsFeature(feature db.Feature) bool {
	return m.features()&feature == feature
}

// Info walks every shard to report how records are distributed.
func (m *Map[K, V]) Info() db.Info {
	info := m.Core.Info(m.impl, m.features())
	info.LoadFactor = m.Header.LoadFactor()
	info.Lock = m.lock.Stats()
	cache := m.cache.Stats()
	info.Cache = &cache
	info.StructureNodes = m.router.Nodes()

	var sizes []float64
	err := m.eachShard(func(a *anchor[K, V]) (bool, error) {
		n := 0
		err := m.Engine.Range(a, func(K, skiplist.Record) bool {
			n++
			return true
		})
		if n > 0 {
			sizes = append(sizes, float64(n))
		}
		return true, err
	})
	if err != nil {
		m.log.Warningf("cannot compute shard distribution: %v", err)
		return info
	}
	dist := util.NewDistributionStats(sizes)
	info.Shards = &dist
	return info
}

func (m *Map[K, V]) Flush() error {
	if err := m.CheckOpen(); err != nil {
		return err
	}
	return m.Core.Flush()
}

func (m *Map[K, V]) Close() error {
	first, err := m.Core.Close()
	if !first {
		return db.ErrClosed
	}
	m.log.Infof("closed %s (header=%d, len=%d)", m.impl, m.Header.Position(), m.Header.Count())
	return err
}
