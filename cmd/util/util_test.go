package util

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/common"
	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestOpenMapUsesRoot(t *testing.T) {
	for _, engine := range []db.Implementation{db.ImplSkipList, db.ImplBitmap, db.ImplTrie} {
		engine := engine
		t.Run(string(engine), func(t *testing.T) {
			config := common.DefaultEngineConfig()
			config.Path = filepath.Join(t.TempDir(), "cli.db")
			config.Engine = engine

			st, err := OpenStore(config)
			require.NoError(t, err)
			m, err := OpenMap(st, config)
			require.NoError(t, err)
			assert.Equal(t, m.HeaderPosition(), st.Root())

			_, _, err = m.Put("hello", []byte("world"))
			require.NoError(t, err)
			require.NoError(t, m.Close())
			require.NoError(t, st.Close())

			st, err = OpenStore(config)
			require.NoError(t, err)
			defer st.Close()
			m, err = OpenMap(st, config)
			require.NoError(t, err)
			defer m.Close()

			v, ok, err := m.Get("hello")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("world"), v)
		})
	}
}

func TestOpenMapWithOtherEngine(t *testing.T) {
	config := common.DefaultEngineConfig()
	config.Path = filepath.Join(t.TempDir(), "cli.db")

	st, err := OpenStore(config)
	require.NoError(t, err)
	defer st.Close()
	m, err := OpenMap(st, config)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	config.Engine = db.ImplTrie
	_, err = OpenMap(st, config)
	var bufErr *store.BufferingError
	assert.True(t, errors.As(err, &bufErr), "expected a buffering error, got %v", err)
}
