package skiplist

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("skiplist")

// the single skip list is always locked as resource 0
const resource = 0

// skipListImpl is a map backed by one skip list anchored in its header.
type skipListImpl[K, V any] struct {
	*Core[K, V]
	lock lockmgr.ILockStrategy
}

// New creates an empty skip list map in st. Without opts.Lock a global lock is used.
//
// Thread-safety: the returned map is as safe as its lock strategy.
func New[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	h, err := CreateHeader(st, KindSkipList, 0, 0, store.NilPosition)
	if err != nil {
		return nil, err
	}
	plog.Infof("created skip list (header=%d)", h.Position())
	return newSkipList(st, keys, values, h, opts), nil
}

// Open reopens the skip list map whose header is at pos.
func Open[K, V any](st store.IStore, pos store.Position, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], opts *db.Options) (db.IMap[K, V], error) {
	if keys == nil {
		return nil, db.ErrKeyOrder
	}
	h, err := OpenHeader(st, pos, KindSkipList)
	if err != nil {
		return nil, err
	}
	plog.Infof("opened skip list (header=%d, len=%d)", pos, h.Count())
	return newSkipList(st, keys, values, h, opts), nil
}

func newSkipList[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], h *Header, opts *db.Options) *skipListImpl[K, V] {
	o := CompleteOptions(opts)
	if o.Lock == nil {
		o.Lock = lockmgr.NewGlobalLock()
	}
	return &skipListImpl[K, V]{
		Core: NewCore(st, keys, values, h, o, plog),
		lock: o.Lock,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IMap)
// --------------------------------------------------------------------------

func (s *skipListImpl[K, V]) Get(key K) (v V, ok bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return v, false, err
	}
	err = s.lock.Read(resource, func() error {
		v, ok, err = s.Core.Get(s.Header, key)
		return err
	})
	return v, ok, err
}

func (s *skipListImpl[K, V]) Put(key K, value V) (old V, replaced bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return old, false, err
	}
	err = s.lock.Write(resource, func() error {
		old, replaced, err = s.Core.Put(s.Header, key, value)
		return err
	})
	return old, replaced, err
}

func (s *skipListImpl[K, V]) PutAll(entries []db.Entry[K, V]) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	return s.lock.Write(resource, func() error {
		for _, e := range entries {
			if _, _, err := s.Core.Put(s.Header, e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *skipListImpl[K, V]) Remove(key K) (old V, removed bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return old, false, err
	}
	err = s.lock.Write(resource, func() error {
		old, removed, err = s.Core.Remove(s.Header, key)
		return err
	})
	return old, removed, err
}

func (s *skipListImpl[K, V]) Clear() error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	return s.lock.All(func() error {
		if err := s.Header.Reset(store.NilPosition); err != nil {
			return err
		}
		plog.Infof("cleared skip list (header=%d)", s.Header.Position())
		return nil
	})
}

func (s *skipListImpl[K, V]) ContainsKey(key K) (bool, error) {
	_, ok, err := s.GetRecordReference(key)
	return ok, err
}

func (s *skipListImpl[K, V]) ContainsValue(value V) (found bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return false, err
	}
	want, err := s.EncodeValue(value)
	if err != nil {
		return false, err
	}
	err = s.lock.Read(resource, func() error {
		found, err = s.Core.ContainsValue(s.Header, value, want)
		return err
	})
	return found, err
}

func (s *skipListImpl[K, V]) GetRecordReference(key K) (ref uint64, ok bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return 0, false, err
	}
	err = s.lock.Read(resource, func() error {
		ref, ok, err = s.Reference(s.Header, key)
		return err
	})
	return ref, ok, err
}

func (s *skipListImpl[K, V]) GetByReference(ref uint64) (v V, ok bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return v, false, err
	}
	err = s.lock.Read(resource, func() error {
		var rec Record
		if _, rec, ok, err = s.Engine.ByReference(ref); err != nil || !ok {
			return err
		}
		v, ok, err = s.ReadValue(rec)
		return err
	})
	return v, ok, err
}

func (s *skipListImpl[K, V]) GetFieldByReference(ref uint64, field string) (v any, ok bool, err error) {
	if err = s.CheckOpen(); err != nil {
		return nil, false, err
	}
	err = s.lock.Read(resource, func() error {
		var rec Record
		if _, rec, ok, err = s.Engine.ByReference(ref); err != nil || !ok {
			return err
		}
		v, ok, err = s.ReadField(rec, field)
		return err
	})
	return v, ok, err
}

func (s *skipListImpl[K, V]) Above(key K, inclusive bool) (*roaring64.Bitmap, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	refs := roaring64.New()
	err := s.lock.Read(resource, func() error {
		return s.Engine.Above(s.Header, key, inclusive, func(_ K, rec Record) bool {
			refs.Add(rec.ID)
			return true
		})
	})
	return refs, err
}

func (s *skipListImpl[K, V]) Below(key K, inclusive bool) (*roaring64.Bitmap, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	refs := roaring64.New()
	err := s.lock.Read(resource, func() error {
		return s.Engine.Below(s.Header, key, inclusive, func(_ K, rec Record) bool {
			refs.Add(rec.ID)
			return true
		})
	})
	return refs, err
}

func (s *skipListImpl[K, V]) Range(fn func(key K, value V) bool) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	return s.lock.Read(resource, func() error {
		_, err := s.Core.Range(s.Header, fn)
		return err
	})
}

func (s *skipListImpl[K, V]) Len() uint64 {
	return s.Header.Count()
}

func (s *skipListImpl[K, V]) HeaderPosition() store.Position {
	return s.Header.Position()
}

func (s *skipListImpl[K, V]) features() db.Feature {
	f := db.FeatureOrderedRange
	if s.Opts.Fields != nil {
		f |= db.FeatureFieldAccess
	}
	if s.lock.Name() != lockmgr.StrategyNone {
		f |= db.FeatureConcurrent
	}
	return f
}

func (s *skipListImpl[K, V]) SupportsFeature(feature db.Feature) bool {
	return s.features()&feature == feature
}

func (s *skipListImpl[K, V]) Info() db.Info {
	info := s.Core.Info(db.ImplSkipList, s.features())
	info.Lock = s.lock.Stats()
	return info
}

func (s *skipListImpl[K, V]) Flush() error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	return s.Core.Flush()
}

func (s *skipListImpl[K, V]) Close() error {
	first, err := s.Core.Close()
	if !first {
		return db.ErrClosed
	}
	plog.Infof("closed skip list (header=%d, len=%d)", s.Header.Position(), s.Header.Count())
	return err
}
