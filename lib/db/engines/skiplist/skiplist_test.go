package skiplist

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/db"
	dbtesting "github.com/ValentinKolb/skipstore/lib/db/testing"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/ValentinKolb/skipstore/lib/store/estore"
	"github.com/ValentinKolb/skipstore/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t testing.TB, st store.IStore, opts *db.Options) dbtesting.Fixture {
	t.Cleanup(func() { st.Close() })

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), opts)
	require.NoError(t, err)
	return dbtesting.Fixture{
		Map: m,
		Reopen: func(pos store.Position) (db.IMap[int64, string], error) {
			return Open(st, pos, serializer.Int64Keys(), serializer.NewStringSerializer(), opts)
		},
		Floats: func() (db.IMap[float64, string], error) {
			return New(st, serializer.Float64Keys(), serializer.NewStringSerializer(), opts)
		},
	}
}

func memoryFactory(opts func() *db.Options) dbtesting.MapFactory {
	return func(t testing.TB) dbtesting.Fixture {
		st, err := estore.Open(nil)
		require.NoError(t, err)
		return fixture(t, st, opts())
	}
}

func TestSkipList(t *testing.T) {
	dbtesting.RunMapTests(t, "memory", memoryFactory(func() *db.Options { return nil }))

	dbtesting.RunMapTests(t, "file", func(t testing.TB) dbtesting.Fixture {
		st, err := fstore.Open(filepath.Join(t.TempDir(), "skiplist.db"), nil)
		require.NoError(t, err)
		return fixture(t, st, nil)
	})

	dbtesting.RunMapTests(t, "deferred", memoryFactory(func() *db.Options {
		opts := db.DefaultOptions()
		opts.Reclaim = db.ReclaimDeferred
		return opts
	}))

	dbtesting.RunMapTests(t, "no-reclaim", memoryFactory(func() *db.Options {
		opts := db.DefaultOptions()
		opts.Reclaim = db.ReclaimNone
		return opts
	}))

	dbtesting.RunMapTests(t, "no-lock", memoryFactory(func() *db.Options {
		opts := db.DefaultOptions()
		opts.Lock = lockmgr.NewNoLock()
		return opts
	}))

	dbtesting.RunMapTests(t, "low-levels", memoryFactory(func() *db.Options {
		opts := db.DefaultOptions()
		opts.MaxLevel = 2
		return opts
	}))
}

func BenchmarkSkipList(b *testing.B) {
	dbtesting.RunMapBenchmarks(b, "memory", memoryFactory(func() *db.Options { return nil }))
}

// --------------------------------------------------------------------------
// Engine specific tests
// --------------------------------------------------------------------------

func newMap(t *testing.T, opts *db.Options) (*skipListImpl[int64, string], store.IStore) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), opts)
	require.NoError(t, err)
	return m.(*skipListImpl[int64, string]), st
}

func TestNilKeyCodec(t *testing.T) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	defer st.Close()

	_, err = New[int64, string](st, nil, serializer.NewStringSerializer(), nil)
	assert.ErrorIs(t, err, db.ErrKeyOrder)
}

func TestLevelsStayOrdered(t *testing.T) {
	m, st := newMap(t, nil)

	for _, k := range rand.Perm(2000) {
		_, _, err := m.Put(int64(k), "v")
		require.NoError(t, err)
	}

	height, err := m.Engine.Height(m.Header)
	require.NoError(t, err)
	assert.Greater(t, height, 3, "2000 keys should build a few levels")
	assert.LessOrEqual(t, height, db.DefaultMaxLevel)

	// every level is sorted and each node above level 0 is a subset of the level below
	head, err := readNode(st, m.Header.First())
	require.NoError(t, err)
	var above map[int64]bool
	for {
		seen := map[int64]bool{}
		prev := int64(-1)
		for pos := head.next; pos != store.NilPosition; {
			n, err := readNode(st, pos)
			require.NoError(t, err)
			k, err := m.Engine.decodeKey(n)
			require.NoError(t, err)
			assert.Greater(t, k, prev, "level %d not sorted", head.level)
			assert.Equal(t, head.level, n.level)
			prev = k
			seen[k] = true
			pos = n.next
		}
		for k := range above {
			assert.True(t, seen[k], "key %d on level %d but not below", k, head.level+1)
		}
		if head.down == store.NilPosition {
			assert.Len(t, seen, 2000)
			break
		}
		above = seen
		head, err = readNode(st, head.down)
		require.NoError(t, err)
	}

	info := m.Info()
	assert.Equal(t, int64(2000), info.InsertLevels.Count)
	assert.Equal(t, int64(2000), info.Operations[OpPut].Count)
}

func TestUpdateRewritesAllLevels(t *testing.T) {
	m, st := newMap(t, nil)

	for k := int64(0); k < 200; k++ {
		m.Put(k, "old")
	}
	for k := int64(0); k < 200; k++ {
		m.Put(k, "new")
	}

	// walk every level and check the record of each node
	for pos := m.Header.First(); pos != store.NilPosition; {
		head, err := readNode(st, pos)
		require.NoError(t, err)
		for p := head.next; p != store.NilPosition; {
			n, err := readNode(st, p)
			require.NoError(t, err)
			v, _, err := m.ReadValue(n.rec)
			require.NoError(t, err)
			assert.Equal(t, "new", v)
			p = n.next
		}
		pos = head.down
	}
}

func TestTombstone(t *testing.T) {
	opts := db.DefaultOptions()
	opts.Reclaim = db.ReclaimNone
	m, st := newMap(t, opts)

	m.Put(1, "one")
	ref, ok, err := m.GetRecordReference(1)
	require.NoError(t, err)
	require.True(t, ok)

	_, removed, err := m.Remove(1)
	require.NoError(t, err)
	require.True(t, removed)

	// nothing is reclaimed, the node is still there but no longer carries its id
	n, err := readNode(st, store.Position(ref))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n.rec.ID)

	_, ok, err = m.GetByReference(ref)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestImmediateReclaimReusesSpans(t *testing.T) {
	m, st := newMap(t, nil)

	empty := st.Size()
	for k := int64(0); k < 100; k++ {
		m.Put(k, "some value that takes space")
	}
	full := st.Size()
	for k := int64(0); k < 100; k++ {
		m.Remove(k)
	}
	for k := int64(0); k < 100; k++ {
		m.Put(k, "some value that takes space")
	}
	// only nodes beyond the levels of the first round need fresh space
	assert.Less(t, st.Size()-full, (full-empty)/2, "freed spans should be reused")
}

func TestCompleteOptions(t *testing.T) {
	assert.Equal(t, *db.DefaultOptions(), CompleteOptions(nil))

	o := CompleteOptions(&db.Options{LoadFactor: 3})
	assert.Equal(t, db.ReclaimImmediate, o.Reclaim)
	assert.Equal(t, db.DefaultCacheSize, o.CacheSize)
	assert.Equal(t, db.DefaultMaxLevel, o.MaxLevel)
	assert.Equal(t, 3, o.LoadFactor)

	o = CompleteOptions(&db.Options{Reclaim: db.ReclaimNone, CacheSize: db.CacheDisabled})
	assert.Equal(t, db.ReclaimNone, o.Reclaim)
	assert.Zero(t, o.CacheSize)
}

func TestPartialOptionsReclaim(t *testing.T) {
	m, st := newMap(t, &db.Options{MaxLevel: 8})
	assert.Equal(t, db.ReclaimImmediate.String(), m.Info().Reclaim)

	for k := int64(0); k < 50; k++ {
		m.Put(k, "some value that takes space")
	}
	for k := int64(0); k < 50; k++ {
		m.Remove(k)
	}
	freed := st.Stats().FreeSpans
	assert.Positive(t, freed, "removed records should be freed")
}

func TestContainsValueGob(t *testing.T) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewGOBSerializer[map[string]int](), nil)
	require.NoError(t, err)
	defer m.Close()

	build := func(offset int) map[string]int {
		v := make(map[string]int, 30)
		for i := 0; i < 30; i++ {
			v[fmt.Sprintf("field-%d", i)] = i + offset
		}
		return v
	}
	_, _, err = m.Put(1, build(0))
	require.NoError(t, err)

	// gob encodes maps in iteration order, so equal maps may differ in bytes
	for i := 0; i < 10; i++ {
		ok, err := m.ContainsValue(build(0))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := m.ContainsValue(build(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeferredReclaim(t *testing.T) {
	opts := db.DefaultOptions()
	opts.Reclaim = db.ReclaimDeferred
	m, _ := newMap(t, opts)

	for k := int64(0); k < 50; k++ {
		m.Put(k, "v")
	}
	for k := int64(0); k < 50; k++ {
		m.Remove(k)
	}
	require.NoError(t, m.Flush())

	info := m.Info()
	require.NotNil(t, info.Reclaimer)
	assert.Zero(t, info.Reclaimer.Pending)
	// at least one node and one value per key
	assert.GreaterOrEqual(t, info.Reclaimer.Freed, uint64(100))
	assert.Zero(t, info.Reclaimer.Failures)
}

type point struct {
	X, Y int64
	Tag  uint32
}

func TestFieldAccess(t *testing.T) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	defer st.Close()

	opts := db.DefaultOptions()
	opts.Fields = serializer.NewFieldTable("point").Int64("x", 0).Int64("y", 8).Uint32("tag", 16)
	m, err := New(st, serializer.StringKeys(), serializer.NewBinarySerializer[point](), opts)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.SupportsFeature(db.FeatureFieldAccess))

	_, _, err = m.Put("a", point{X: -3, Y: 42, Tag: 7})
	require.NoError(t, err)
	ref, _, _ := m.GetRecordReference("a")

	y, ok, err := m.GetFieldByReference(ref, "y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), y)

	tag, _, _ := m.GetFieldByReference(ref, "tag")
	assert.Equal(t, uint32(7), tag)

	_, _, err = m.GetFieldByReference(ref, "z")
	assert.ErrorIs(t, err, serializer.ErrUnknownField)

	_, ok, err = m.GetFieldByReference(ref+1, "x")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenWrongKind(t *testing.T) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	defer st.Close()

	h, err := CreateHeader(st, KindTrie, 2, 1, store.NilPosition)
	require.NoError(t, err)

	_, err = Open(st, h.Position(), serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	var bufErr *store.BufferingError
	assert.True(t, errors.As(err, &bufErr), "expected a buffering error, got %v", err)

	_, err = Open(st, store.Position(st.Size()+64), serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	assert.True(t, errors.As(err, &bufErr))
}

func TestStringKeys(t *testing.T) {
	st, err := estore.Open(nil)
	require.NoError(t, err)
	defer st.Close()

	m, err := New(st, serializer.StringKeys(), serializer.NewJSONSerializer[[]int](), nil)
	require.NoError(t, err)
	defer m.Close()

	for _, k := range []string{"pear", "apple", "fig", "banana", ""} {
		_, _, err := m.Put(k, []int{len(k)})
		require.NoError(t, err)
	}

	var keys []string
	m.Range(func(k string, v []int) bool {
		assert.Equal(t, []int{len(k)}, v)
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []string{"", "apple", "banana", "fig", "pear"}, keys)

	refs, err := m.Above("b", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), refs.GetCardinality())
}

func TestClearOrphansList(t *testing.T) {
	m, _ := newMap(t, nil)

	for k := int64(0); k < 20; k++ {
		m.Put(k, "v")
	}
	require.NoError(t, m.Clear())

	assert.Equal(t, store.NilPosition, m.Header.First())
	h, err := m.Engine.Height(m.Header)
	require.NoError(t, err)
	assert.Equal(t, -1, h)
	assert.Zero(t, m.Len())

	_, ok, err := m.Get(3)
	assert.NoError(t, err)
	assert.False(t, ok)
}
