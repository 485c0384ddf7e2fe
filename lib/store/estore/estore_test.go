package estore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/store"
	storetesting "github.com/ValentinKolb/skipstore/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetesting.RunStoreTests(t, "estore", func(t *testing.T) storetesting.StoreFactory {
		return func() (store.IStore, error) { return Open(nil) }
	}, false)
}

func TestChunkBoundary(t *testing.T) {
	m := NewMedium()
	require.NoError(t, m.Grow(3*ChunkSize))

	data := make([]byte, ChunkSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := m.WriteAt(data, ChunkSize-5)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	out := make([]byte, len(data))
	_, err = m.ReadAt(out, ChunkSize-5)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = m.WriteAt([]byte{1, 2}, 3*ChunkSize-1)
	assert.Error(t, err)
}

func TestMetricsAreExported(t *testing.T) {
	s, err := Open(nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Allocate(32)
	require.NoError(t, err)

	var buf bytes.Buffer
	s.Metrics().WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `skipstore_store_allocations_total{backend="memory"} 1`)
}
