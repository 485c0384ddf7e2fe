//go:build unix

package trie

import (
	"path/filepath"
	"testing"

	dbtesting "github.com/ValentinKolb/skipstore/lib/db/testing"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/ValentinKolb/skipstore/lib/store/mstore"
	"github.com/stretchr/testify/require"
)

func TestTrieMmap(t *testing.T) {
	dbtesting.RunMapTests(t, "mmap", factory(func(t testing.TB) store.IStore {
		st, err := mstore.Open(filepath.Join(t.TempDir(), "trie.db"), nil)
		require.NoError(t, err)
		return st
	}, loadFactor(2)))
}
