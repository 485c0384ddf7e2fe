package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	prev := logOutput
	logOutput = &buf
	defer func() { logOutput = prev }()

	l := CreateLogger("trie")
	l.Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	l.SetLevel(logger.DEBUG)
	l.Debugf("shard %d created", 7)
	l.Warningf("careful")
	out := buf.String()
	assert.Contains(t, out, "DEBUG | trie       | shard 7 created")
	assert.Contains(t, out, "WARN  | trie       | careful")

	buf.Reset()
	l.SetLevel(logger.ERROR)
	l.Infof("hidden")
	l.Errorf("broken")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
	} {
		got, err := ParseLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestEngineConfig(t *testing.T) {
	c := DefaultEngineConfig()
	require.NoError(t, c.Validate())

	opts, err := c.Options()
	require.NoError(t, err)
	assert.Equal(t, db.ReclaimImmediate, opts.Reclaim)
	assert.Nil(t, opts.Lock, "the engine picks its default lock")

	c.Lock = lockmgr.StrategyBucket
	c.LockBuckets = 16
	c.Reclaim = "deferred"
	opts, err = c.Options()
	require.NoError(t, err)
	assert.Equal(t, db.ReclaimDeferred, opts.Reclaim)
	assert.Equal(t, 16, opts.Lock.Stats().Locks)

	out := c.String()
	assert.Contains(t, out, "STORE")
	assert.Contains(t, out, "Buckets")
	assert.Contains(t, out, "deferred")

	for _, broken := range []func(c *EngineConfig){
		func(c *EngineConfig) { c.Store = "tape" },
		func(c *EngineConfig) { c.Engine = "btree" },
		func(c *EngineConfig) { c.Reclaim = "later" },
		func(c *EngineConfig) { c.LogLevel = "loud" },
		func(c *EngineConfig) { c.Path = "" },
	} {
		c := DefaultEngineConfig()
		broken(c)
		assert.Error(t, c.Validate())
	}

	c = DefaultEngineConfig()
	c.Lock = "spin"
	_, err = c.Options()
	assert.Error(t, err)
}
