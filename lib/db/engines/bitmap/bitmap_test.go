package bitmap

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/internal/sharded"
	"github.com/ValentinKolb/skipstore/lib/db/engines/skiplist"
	dbtesting "github.com/ValentinKolb/skipstore/lib/db/testing"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/ValentinKolb/skipstore/lib/store/estore"
	"github.com/ValentinKolb/skipstore/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memory(t testing.TB) store.IStore {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	return st
}

func factory(open func(t testing.TB) store.IStore, opts func() *db.Options) dbtesting.MapFactory {
	return func(t testing.TB) dbtesting.Fixture {
		st := open(t)
		t.Cleanup(func() { st.Close() })

		o := opts()
		m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), o)
		require.NoError(t, err)
		return dbtesting.Fixture{
			Map: m,
			Reopen: func(pos store.Position) (db.IMap[int64, string], error) {
				return Open(st, pos, serializer.Int64Keys(), serializer.NewStringSerializer(), o)
			},
			Floats: func() (db.IMap[float64, string], error) {
				return New(st, serializer.Float64Keys(), serializer.NewStringSerializer(), o)
			},
		}
	}
}

func withOptions(fn func(o *db.Options)) func() *db.Options {
	return func() *db.Options {
		o := db.DefaultOptions()
		fn(o)
		return o
	}
}

func TestBitmap(t *testing.T) {
	dbtesting.RunMapTests(t, "memory", factory(memory, func() *db.Options { return nil }))

	dbtesting.RunMapTests(t, "file", factory(func(t testing.TB) store.IStore {
		st, err := fstore.Open(filepath.Join(t.TempDir(), "bitmap.db"), nil)
		require.NoError(t, err)
		return st
	}, func() *db.Options { return nil }))

	dbtesting.RunMapTests(t, "load-factor-1", factory(memory, withOptions(func(o *db.Options) {
		o.LoadFactor = 1
	})))

	dbtesting.RunMapTests(t, "few-buckets", factory(memory, withOptions(func(o *db.Options) {
		o.Lock = lockmgr.NewBucketLock(4)
	})))

	dbtesting.RunMapTests(t, "no-cache", factory(memory, withOptions(func(o *db.Options) {
		o.CacheSize = db.CacheDisabled
	})))

	dbtesting.RunMapTests(t, "tiny-cache", factory(memory, withOptions(func(o *db.Options) {
		o.CacheSize = 2
		o.Reclaim = db.ReclaimDeferred
	})))

	dbtesting.RunMapTests(t, "no-lock", factory(memory, withOptions(func(o *db.Options) {
		o.Lock = lockmgr.NewNoLock()
	})))
}

func BenchmarkBitmap(b *testing.B) {
	dbtesting.RunMapBenchmarks(b, "memory", factory(memory, func() *db.Options { return nil }))
}

// --------------------------------------------------------------------------
// Combinator specific tests
// --------------------------------------------------------------------------

func TestInvalidLoadFactor(t *testing.T) {
	st := memory(t)
	defer st.Close()

	for _, lf := range []int{3, 4, 9} {
		_, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: lf})
		assert.ErrorIs(t, err, db.ErrInvalidLoadFactor, "load factor %d", lf)
	}

	_, err := New[int64, string](st, nil, serializer.NewStringSerializer(), nil)
	assert.ErrorIs(t, err, db.ErrKeyOrder)
}

func TestSlotArrayIsZeroed(t *testing.T) {
	st := memory(t)
	defer st.Close()

	// leave garbage in the free list so the array is carved out of it
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	pos, err := st.Allocate(uint32(len(garbage)))
	require.NoError(t, err)
	_, err = st.Write(garbage, pos)
	require.NoError(t, err)
	require.NoError(t, st.Deallocate(pos, uint32(len(garbage))))

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1})
	require.NoError(t, err)
	defer m.Close()

	assert.Zero(t, m.Len())
	_, ok, err := m.Get(1)
	assert.NoError(t, err)
	assert.False(t, ok)

	refs, err := m.Above(0, true)
	require.NoError(t, err)
	assert.True(t, refs.IsEmpty())
}

func TestDistribution(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.StringKeys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1, CacheSize: 64})
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 10_000; i++ {
		_, _, err := m.Put(fmt.Sprintf("key-%d", i), "v")
		require.NoError(t, err)
	}

	info := m.Info()
	assert.Equal(t, db.ImplBitmap, info.Implementation)
	assert.Equal(t, 1, info.LoadFactor)
	assert.Equal(t, uint64(10_000), info.Len)
	assert.Equal(t, int64(1), info.StructureNodes)
	require.NotNil(t, info.Shards)
	assert.Greater(t, info.Shards.Shards, 250)
	assert.Greater(t, info.Shards.DistributionQuality, 0.4)
	assert.InDelta(t, 10_000.0, info.Shards.Mean*float64(info.Shards.Shards), 0.001)
	require.NotNil(t, info.Cache)
	assert.Equal(t, 64, info.Cache.Capacity)
	assert.LessOrEqual(t, info.Cache.Entries, 64)
	assert.Positive(t, info.Cache.Evictions)
	assert.Equal(t, lockmgr.StrategyBucket, info.Lock.Strategy)
	assert.True(t, m.SupportsFeature(db.FeatureSharded|db.FeatureConcurrent))
	assert.False(t, m.SupportsFeature(db.FeatureOrderedRange))
}

func TestPartialOptionsUseDefaults(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1})
	require.NoError(t, err)
	defer m.Close()

	info := m.Info()
	assert.Equal(t, db.ReclaimImmediate.String(), info.Reclaim)
	assert.Equal(t, db.DefaultMaxLevel, info.MaxLevel)
	require.NotNil(t, info.Cache)
	assert.Equal(t, db.DefaultCacheSize, info.Cache.Capacity)
}

func TestContainsValueGob(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.StringKeys(), serializer.NewGOBSerializer[map[string]int](), nil)
	require.NoError(t, err)
	defer m.Close()

	build := func(offset int) map[string]int {
		v := make(map[string]int, 30)
		for i := 0; i < 30; i++ {
			v[fmt.Sprintf("field-%d", i)] = i + offset
		}
		return v
	}
	for i := 0; i < 20; i++ {
		_, _, err := m.Put(fmt.Sprintf("key-%d", i), build(i*100))
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		ok, err := m.ContainsValue(build(700))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := m.ContainsValue(build(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenFindsShards(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 2})
	require.NoError(t, err)
	for k := int64(0); k < 500; k++ {
		m.Put(k, "v")
	}
	pos := m.HeaderPosition()
	require.NoError(t, m.Close())

	// the load factor comes from the header
	m, err = Open(st, pos, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 2, m.Info().LoadFactor)
	n := 0
	require.NoError(t, m.Range(func(int64, string) bool {
		n++
		return true
	}))
	assert.Equal(t, 500, n)
}

func TestOpenWrongKind(t *testing.T) {
	st := memory(t)
	defer st.Close()

	sl, err := skiplist.New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	require.NoError(t, err)

	_, err = Open(st, sl.HeaderPosition(), serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	var bufErr *store.BufferingError
	assert.True(t, errors.As(err, &bufErr), "expected a buffering error, got %v", err)
}

func TestBucketsDoNotBlockEachOther(t *testing.T) {
	st := memory(t)
	defer st.Close()

	lock := lockmgr.NewBucketLock(lockmgr.DefaultBuckets)
	im, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1, Lock: lock})
	require.NoError(t, err)
	defer im.Close()
	m := im.(*sharded.Map[int64, string])

	// find keys in two different buckets plus another key in the first one
	shard := func(k int64) uint32 {
		id, err := m.ShardOf(k)
		require.NoError(t, err)
		return id
	}
	a, b, same := int64(0), int64(-1), int64(-1)
	for k := int64(1); b < 0 || same < 0; k++ {
		switch {
		case lock.BucketOf(uint64(shard(k))) != lock.BucketOf(uint64(shard(a))):
			if b < 0 {
				b = k
			}
		case same < 0:
			same = k
		}
	}

	stamp := lock.Lock(uint64(shard(a)))

	other := make(chan error, 1)
	go func() {
		_, _, err := m.Put(b, "b")
		other <- err
	}()
	select {
	case err := <-other:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("put into another bucket was blocked")
	}

	blocked := make(chan error, 1)
	go func() {
		_, _, err := m.Put(same, "same")
		blocked <- err
	}()
	select {
	case <-blocked:
		t.Fatal("put into a locked bucket did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock(stamp)
	assert.NoError(t, <-blocked)

	v, ok, _ := m.Get(same)
	assert.True(t, ok)
	assert.Equal(t, "same", v)
}

type account struct {
	ID      uint64
	Balance int64
	Active  bool
}

func TestFieldAccess(t *testing.T) {
	st := memory(t)
	defer st.Close()

	fields := serializer.NewFieldTable("account").Uint64("id", 0).Int64("balance", 8).Bool("active", 16)
	m, err := New(st, serializer.Uint64Keys(), serializer.NewBinarySerializer[account](), &db.Options{LoadFactor: 1, Fields: fields})
	require.NoError(t, err)
	defer m.Close()

	for id := uint64(1); id <= 100; id++ {
		_, _, err := m.Put(id, account{ID: id, Balance: int64(id) * 10, Active: id%2 == 0})
		require.NoError(t, err)
	}

	ref, ok, err := m.GetRecordReference(42)
	require.NoError(t, err)
	require.True(t, ok)

	balance, ok, err := m.GetFieldByReference(ref, "balance")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(420), balance)

	active, _, _ := m.GetFieldByReference(ref, "active")
	assert.Equal(t, true, active)

	m.Remove(42)
	_, ok, err = m.GetFieldByReference(ref, "balance")
	assert.NoError(t, err)
	assert.False(t, ok)
}
