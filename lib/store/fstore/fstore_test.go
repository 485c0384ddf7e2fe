package fstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/store"
	storetesting "github.com/ValentinKolb/skipstore/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFactory(t *testing.T) storetesting.StoreFactory {
	path := filepath.Join(t.TempDir(), "heap.db")
	return func() (store.IStore, error) {
		return Open(path, nil)
	}
}

func TestFileStore(t *testing.T) {
	storetesting.RunStoreTests(t, "fstore", newFactory, true)
}

func TestFileGrowsInSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Delete()

	_, err = s.Allocate(100)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(GrowStep), info.Size())
	assert.Equal(t, uint64(store.HeaderSize+100), s.Size())
}

func TestRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o644))

	_, err := Open(path, nil)
	assert.True(t, store.IsCode(err, store.RetCCorrupt), "expected RetCCorrupt, got %v", err)
}

func TestDeleteRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.db")
	s, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
