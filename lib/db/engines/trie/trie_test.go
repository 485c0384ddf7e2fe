package trie

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/bitmap"
	dbtesting "github.com/ValentinKolb/skipstore/lib/db/testing"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/ValentinKolb/skipstore/lib/store/estore"
	"github.com/ValentinKolb/skipstore/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
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

func loadFactor(lf int) func() *db.Options {
	return func() *db.Options {
		o := db.DefaultOptions()
		o.LoadFactor = lf
		return o
	}
}

func TestTrie(t *testing.T) {
	for lf := MinLoadFactor; lf <= MaxLoadFactor; lf++ {
		dbtesting.RunMapTests(t, fmt.Sprintf("memory-lf%d", lf), factory(memory, loadFactor(lf)))
	}

	dbtesting.RunMapTests(t, "file", factory(func(t testing.TB) store.IStore {
		st, err := fstore.Open(filepath.Join(t.TempDir(), "trie.db"), nil)
		require.NoError(t, err)
		return st
	}, loadFactor(3)))

	dbtesting.RunMapTests(t, "bucket-lock", factory(memory, func() *db.Options {
		o := db.DefaultOptions()
		o.Lock = lockmgr.NewBucketLock(16)
		o.CacheSize = 8
		return o
	}))

	dbtesting.RunMapTests(t, "global-lock", factory(memory, func() *db.Options {
		o := db.DefaultOptions()
		o.Lock = lockmgr.NewGlobalLock()
		o.Reclaim = db.ReclaimDeferred
		return o
	}))
}

func BenchmarkTrie(b *testing.B) {
	dbtesting.RunMapBenchmarks(b, "memory", factory(memory, loadFactor(2)))
}

// --------------------------------------------------------------------------
// Combinator specific tests
// --------------------------------------------------------------------------

func TestThousandKeys(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 3})
	require.NoError(t, err)
	defer m.Close()

	for _, k := range rand.Perm(1000) {
		key := int64(k + 1)
		_, _, err := m.Put(key, valueOf(key))
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	require.NoError(t, m.Range(func(k int64, v string) bool {
		assert.Equal(t, valueOf(k), v)
		assert.False(t, seen[k], "key %d visited twice", k)
		seen[k] = true
		return true
	}))
	assert.Len(t, seen, 1000)

	refs, err := m.Above(500, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(501), refs.GetCardinality())
	for k := int64(500); k <= 1000; k++ {
		ref, ok, err := m.GetRecordReference(k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, refs.Contains(ref), "reference of %d missing", k)
	}
}

func valueOf(k int64) string {
	return fmt.Sprintf("value-%d", k)
}

func TestInvalidLoadFactor(t *testing.T) {
	st := memory(t)
	defer st.Close()

	_, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 5})
	assert.ErrorIs(t, err, db.ErrInvalidLoadFactor)
}

func TestMatrixNodesAreLazy(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 2, CacheSize: 16})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(1), m.Info().StructureNodes)
	before := st.Size()

	m.Put(1, "one")
	assert.Equal(t, int64(2), m.Info().StructureNodes)
	// one matrix node, one head, one record node and the value
	assert.Less(t, st.Size()-before, uint64(2*matrixSize))

	// lookups of missing shards create nothing
	for k := int64(2); k < 100; k++ {
		m.Get(k)
		m.Remove(k)
	}
	assert.Equal(t, int64(2), m.Info().StructureNodes)

	for k := int64(0); k < 5000; k++ {
		m.Put(k, "v")
	}
	nodes := m.Info().StructureNodes
	assert.Greater(t, nodes, int64(200))
	assert.LessOrEqual(t, nodes, int64(1+fanOut))
}

func TestConcurrentPathCreation(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 4, CacheSize: 64})
	require.NoError(t, err)

	const (
		workers   = 8
		perWorker = 500
	)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				k := int64(i*workers + w)
				if _, _, err := m.Put(k, valueOf(k)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	nodes := m.Info().StructureNodes
	pos := m.HeaderPosition()
	require.NoError(t, m.Close())

	// a child created twice for the same slot would lose keys on reopen
	m, err = Open(st, pos, serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, nodes, m.Info().StructureNodes)
	assert.Equal(t, uint64(workers*perWorker), m.Len())
	for k := int64(0); k < workers*perWorker; k++ {
		v, ok, err := m.Get(k)
		require.NoError(t, err)
		require.True(t, ok, "key %d lost", k)
		assert.Equal(t, valueOf(k), v)
	}
}

func TestOpenWrongKind(t *testing.T) {
	st := memory(t)
	defer st.Close()

	bm, err := bitmap.New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 1})
	require.NoError(t, err)

	_, err = Open(st, bm.HeaderPosition(), serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
	var bufErr *store.BufferingError
	assert.True(t, errors.As(err, &bufErr), "expected a buffering error, got %v", err)
}

func TestClearInstallsNewRoot(t *testing.T) {
	st := memory(t)
	defer st.Close()

	m, err := New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), &db.Options{LoadFactor: 2, CacheSize: 32})
	require.NoError(t, err)
	defer m.Close()

	for k := int64(0); k < 300; k++ {
		m.Put(k, "v")
	}
	require.NoError(t, m.Clear())

	info := m.Info()
	assert.Equal(t, int64(1), info.StructureNodes)
	assert.Zero(t, info.Len)
	assert.Zero(t, info.Cache.Entries)
	require.NotNil(t, info.Shards)
	assert.Zero(t, info.Shards.Shards)

	n := 0
	m.Range(func(int64, string) bool {
		n++
		return true
	})
	assert.Zero(t, n)

	m.Put(7, "seven")
	v, ok, _ := m.Get(7)
	assert.True(t, ok)
	assert.Equal(t, "seven", v)
}
