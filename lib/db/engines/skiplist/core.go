package skiplist

import (
	"bytes"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/util"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

// Operation names used for timers.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpRemove = "remove"
	OpRange  = "range"
	OpRef    = "reference"
)

// Core holds everything a map implementation needs besides routing and locking:
// the engine, the header, value (de)serialization, the reclaim policy and metrics.
// The bitmap and trie combinators build on it as well.
//
// Thread-safety: Core performs no locking; the same rules as for Engine apply.
type Core[K, V any] struct {
	Store  store.IStore
	Keys   serializer.IKeyCodec[K]
	Values serializer.ISerializer[V]
	Engine *Engine[K]
	Header *Header
	Opts   db.Options

	log       logger.ILogger
	reclaimer *util.Reclaimer
	registry  gometrics.Registry
	timers    map[string]gometrics.Timer
	sizes     gometrics.Histogram
	levels    gometrics.Histogram
	closed    atomic.Bool
}

// NewCore wires a core for header. opts must be complete (see db.DefaultOptions).
func NewCore[K, V any](st store.IStore, keys serializer.IKeyCodec[K], values serializer.ISerializer[V], h *Header, opts db.Options, log logger.ILogger) *Core[K, V] {
	c := &Core[K, V]{
		Store:    st,
		Keys:     keys,
		Values:   values,
		Header:   h,
		Opts:     opts,
		log:      log,
		registry: gometrics.NewRegistry(),
		timers:   make(map[string]gometrics.Timer),
	}

	for _, op := range []string{OpGet, OpPut, OpRemove, OpRange, OpRef} {
		c.timers[op] = gometrics.GetOrRegisterTimer(op, c.registry)
	}
	c.sizes = gometrics.GetOrRegisterHistogram("record.size", c.registry, gometrics.NewUniformSample(1028))
	c.levels = gometrics.GetOrRegisterHistogram("insert.level", c.registry, gometrics.NewUniformSample(1028))

	var free FreeFunc
	switch opts.Reclaim {
	case db.ReclaimImmediate:
		free = st.Deallocate
	case db.ReclaimDeferred:
		c.reclaimer = util.NewReclaimer(func(pos uint64, size uint32) error {
			return st.Deallocate(store.Position(pos), size)
		}, func(s util.Span, err error) {
			log.Errorf("cannot reclaim %d bytes at %d: %v", s.Size, s.Pos, err)
		})
		free = func(pos store.Position, size uint32) error {
			c.reclaimer.Defer(uint64(pos), size)
			return nil
		}
	}

	c.Engine = NewEngine(st, keys, opts.MaxLevel, free, c.levels)
	return c
}

// CompleteOptions fills unset fields of opts with the values of db.DefaultOptions.
// In the result a CacheSize of 0 means the cache is disabled.
func CompleteOptions(opts *db.Options) db.Options {
	def := db.DefaultOptions()
	if opts == nil {
		return *def
	}
	o := *opts
	if o.Reclaim == db.ReclaimDefault {
		o.Reclaim = def.Reclaim
	}
	if o.MaxLevel <= 0 {
		o.MaxLevel = def.MaxLevel
	}
	if o.LoadFactor <= 0 {
		o.LoadFactor = def.LoadFactor
	}
	switch {
	case o.CacheSize == 0:
		o.CacheSize = def.CacheSize
	case o.CacheSize < 0:
		o.CacheSize = 0
	}
	return o
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Free hands a span to the reclaim policy.
func (c *Core[K, V]) Free(pos store.Position, size uint32) error {
	if size == 0 || pos == store.NilPosition || c.Engine.free == nil {
		return nil
	}
	return c.Engine.free(pos, size)
}

// WriteValue stores v as a new record.
func (c *Core[K, V]) WriteValue(v V) (Record, error) {
	pos, size, err := store.WriteObject(c.Store, v, c.Values)
	if err != nil {
		return Record{}, err
	}
	c.sizes.Update(int64(size))
	return Record{Pos: pos, Size: size}, nil
}

// ReadValue decodes the record rec.
func (c *Core[K, V]) ReadValue(rec Record) (V, bool, error) {
	v, ok, err := store.ReadObject(c.Store, rec.Pos, rec.Size, c.Values)
	if err != nil {
		c.log.Warningf("cannot decode record at %d: %v", rec.Pos, err)
	}
	return v, ok, err
}

// ReadField decodes a single field of rec using the configured field table.
func (c *Core[K, V]) ReadField(rec Record, name string) (any, bool, error) {
	if c.Opts.Fields == nil {
		return nil, false, db.ErrNoFieldTable
	}
	f, err := c.Opts.Fields.Lookup(name)
	if err != nil {
		return nil, false, err
	}
	if f.Offset+f.Size > rec.Size {
		return nil, false, &store.BufferingError{
			Pos:      rec.Pos,
			Expected: c.Opts.Fields.TypeName(),
			Actual:   fmt.Sprintf("record of %d bytes", rec.Size),
		}
	}

	b, ok, err := c.Store.Read(rec.Pos+store.Position(f.Offset), f.Size)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := f.Decode(b)
	if err != nil {
		return nil, false, &store.BufferingError{Pos: rec.Pos + store.Position(f.Offset), Expected: f.Name, Err: err}
	}
	return v, true, nil
}

// --------------------------------------------------------------------------
// Map operations on one skip list
// --------------------------------------------------------------------------

// Get returns the value of key in the skip list of a.
func (c *Core[K, V]) Get(a Anchor, key K) (v V, ok bool, err error) {
	c.timers[OpGet].Time(func() {
		var rec Record
		if rec, ok, err = c.Engine.Get(a, key); err != nil || !ok {
			return
		}
		v, ok, err = c.ReadValue(rec)
	})
	return v, ok, err
}

// Put stores value for key in the skip list of a and adjusts the count.
func (c *Core[K, V]) Put(a Anchor, key K, value V) (old V, replaced bool, err error) {
	c.timers[OpPut].Time(func() {
		var rec, prev Record
		if rec, err = c.WriteValue(value); err != nil {
			return
		}
		if prev, replaced, err = c.Engine.Put(a, key, rec); err != nil {
			_ = c.Free(rec.Pos, rec.Size)
			return
		}
		if !replaced {
			err = c.Header.AddCount(1)
			return
		}
		if old, _, err = c.ReadValue(prev); err != nil {
			return
		}
		err = c.Free(prev.Pos, prev.Size)
	})
	return old, replaced, err
}

// Remove deletes key from the skip list of a and adjusts the count.
func (c *Core[K, V]) Remove(a Anchor, key K) (old V, removed bool, err error) {
	c.timers[OpRemove].Time(func() {
		var rec Record
		if rec, removed, err = c.Engine.Remove(a, key); err != nil || !removed {
			return
		}
		if err = c.Header.AddCount(-1); err != nil {
			return
		}
		if old, _, err = c.ReadValue(rec); err != nil {
			return
		}
		err = c.Free(rec.Pos, rec.Size)
	})
	return old, removed, err
}

// Reference returns the record id of key in the skip list of a.
func (c *Core[K, V]) Reference(a Anchor, key K) (ref uint64, ok bool, err error) {
	c.timers[OpRef].Time(func() {
		var rec Record
		rec, ok, err = c.Engine.Get(a, key)
		ref = rec.ID
	})
	return ref, ok, err
}

// Range visits the values of the skip list of a in key order until fn returns false.
// It reports whether the walk ran to the end.
func (c *Core[K, V]) Range(a Anchor, fn func(key K, value V) bool) (completed bool, err error) {
	c.timers[OpRange].Time(func() {
		completed = true
		var readErr error
		err = c.Engine.Range(a, func(k K, rec Record) bool {
			v, _, e := c.ReadValue(rec)
			if e != nil {
				readErr = e
				return false
			}
			if !fn(k, v) {
				completed = false
				return false
			}
			return true
		})
		if err == nil {
			err = readErr
		}
		if err != nil {
			completed = false
		}
	})
	return completed, err
}

// ContainsValue scans the skip list of a for a record equal to want. encoded is
// want serialized. Records with other bytes are decoded and compared with
// reflect.DeepEqual, as encodings are not always canonical (gob writes maps in
// random order).
func (c *Core[K, V]) ContainsValue(a Anchor, want V, encoded []byte) (found bool, err error) {
	var readErr error
	err = c.Engine.Range(a, func(_ K, rec Record) bool {
		b := []byte{}
		if rec.Size > 0 {
			var ok bool
			if b, ok, readErr = c.Store.Read(rec.Pos, rec.Size); readErr != nil || !ok {
				return false
			}
		}
		if bytes.Equal(b, encoded) {
			found = true
			return false
		}
		var v V
		if err := c.Values.Deserialize(b, &v); err != nil {
			c.log.Warningf("cannot decode record at %d: %v", rec.Pos, err)
			return true
		}
		found = reflect.DeepEqual(v, want)
		return !found
	})
	if err == nil {
		err = readErr
	}
	return found, err
}

// EncodeValue serializes v the way records are stored.
func (c *Core[K, V]) EncodeValue(v V) ([]byte, error) {
	return c.Values.Serialize(v)
}

// --------------------------------------------------------------------------
// Lifecycle & Metadata
// --------------------------------------------------------------------------

// CheckOpen returns db.ErrClosed after Close.
func (c *Core[K, V]) CheckOpen() error {
	if c.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

// Flush waits for pending reclamation and commits the store.
func (c *Core[K, V]) Flush() error {
	if c.reclaimer != nil {
		c.reclaimer.Flush()
	}
	return c.Store.Commit()
}

// Close flushes and stops background work. It reports false if the core was
// already closed.
func (c *Core[K, V]) Close() (bool, error) {
	if !c.closed.CompareAndSwap(false, true) {
		return false, nil
	}
	if c.reclaimer != nil {
		c.reclaimer.Close()
	}
	err := c.Store.Commit()
	c.registry.UnregisterAll()
	return true, err
}

// Info fills the fields every implementation shares.
func (c *Core[K, V]) Info(impl db.Implementation, features db.Feature) db.Info {
	info := db.Info{
		Implementation:    impl,
		SupportedFeatures: features.Features(),
		Len:               c.Header.Count(),
		HeaderPosition:    c.Header.Position(),
		Seed:              c.Header.Seed(),
		MaxLevel:          c.Opts.MaxLevel,
		Reclaim:           c.Opts.Reclaim.String(),
		Store:             c.Store.Stats(),
		Operations:        make(map[string]db.TimerInfo, len(c.timers)),
		RecordSizes:       histogramInfo(c.sizes),
		InsertLevels:      histogramInfo(c.levels),
	}
	for op, t := range c.timers {
		s := t.Snapshot()
		info.Operations[op] = db.TimerInfo{
			Count: s.Count(),
			Mean:  s.Mean(),
			P50:   s.Percentile(0.5),
			P99:   s.Percentile(0.99),
			Rate1: s.Rate1(),
		}
	}
	if c.reclaimer != nil {
		stats := c.reclaimer.Stats()
		info.Reclaimer = &stats
	}
	return info
}

func histogramInfo(h gometrics.Histogram) db.HistogramInfo {
	s := h.Snapshot()
	return db.HistogramInfo{
		Count: s.Count(),
		Min:   s.Min(),
		Max:   s.Max(),
		Mean:  s.Mean(),
		P50:   s.Percentile(0.5),
		P99:   s.Percentile(0.99),
	}
}
