package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/skipstore/lib/common"
	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/db/engines/bitmap"
	"github.com/ValentinKolb/skipstore/lib/db/engines/skiplist"
	"github.com/ValentinKolb/skipstore/lib/db/engines/trie"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
	"github.com/ValentinKolb/skipstore/lib/store/estore"
	"github.com/ValentinKolb/skipstore/lib/store/fstore"
	"github.com/ValentinKolb/skipstore/lib/store/mstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupEngineFlags adds the flags describing store and engine to a command
func SetupEngineFlags(cmd *cobra.Command) {
	def := common.DefaultEngineConfig()

	key := "store"
	cmd.PersistentFlags().String(key, string(def.Store), WrapString("Store backend to use (file, mmap, memory)"))

	key = "path"
	cmd.PersistentFlags().String(key, def.Path, WrapString("Path of the store file (ignored for the memory store)"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(def.Engine), WrapString("Map implementation (skiplist, bitmap, trie). Must match the engine the store was created with"))

	key = "load-factor"
	cmd.PersistentFlags().Int(key, def.LoadFactor, WrapString("Number of hash digits that select a shard (bitmap: 1-2, trie: 1-4). Only used when the map is created"))

	key = "max-level"
	cmd.PersistentFlags().Int(key, def.MaxLevel, WrapString("Maximum height of every skip list"))

	key = "cache-size"
	cmd.PersistentFlags().Int(key, def.CacheSize, WrapString("Number of shards whose location is cached (-1 disables the cache)"))

	key = "reclaim"
	cmd.PersistentFlags().String(key, def.Reclaim, WrapString("What happens to the bytes of removed nodes and replaced values (none, immediate, deferred)"))

	key = "lock"
	cmd.PersistentFlags().String(key, def.Lock, WrapString("Lock strategy (none, global, bucket, dispatch). Empty selects the default of the engine"))

	key = "lock-buckets"
	cmd.PersistentFlags().Int(key, def.LockBuckets, WrapString("Number of buckets of the bucket lock"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files and initializes viper
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skipstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetEngineConfig reads the engine configuration from viper
func GetEngineConfig() *common.EngineConfig {
	return &common.EngineConfig{
		Store:       common.StoreKind(viper.GetString("store")),
		Path:        viper.GetString("path"),
		Engine:      db.Implementation(viper.GetString("engine")),
		LoadFactor:  viper.GetInt("load-factor"),
		MaxLevel:    viper.GetInt("max-level"),
		CacheSize:   viper.GetInt("cache-size"),
		Reclaim:     viper.GetString("reclaim"),
		Lock:        viper.GetString("lock"),
		LockBuckets: viper.GetInt("lock-buckets"),
		LogLevel:    viper.GetString("log-level"),
	}
}

// --------------------------------------------------------------------------
// Opening stores and maps
// --------------------------------------------------------------------------

// Session is an open store together with the map kept in it.
type Session struct {
	Config *common.EngineConfig
	Store  store.IStore
	Map    db.IMap[string, []byte]
}

// OpenSession validates the configuration, sets up logging and opens the map.
func OpenSession(cmd *cobra.Command) (*Session, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	config := GetEngineConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(config); err != nil {
		return nil, err
	}

	st, err := OpenStore(config)
	if err != nil {
		return nil, err
	}
	m, err := OpenMap(st, config)
	if err != nil {
		return nil, errors.Join(err, st.Close())
	}
	return &Session{Config: config, Store: st, Map: m}, nil
}

// Close closes the map and then the store.
func (s *Session) Close() error {
	return errors.Join(s.Map.Close(), s.Store.Close())
}

// OpenStore opens the configured store backend.
func OpenStore(config *common.EngineConfig) (store.IStore, error) {
	switch config.Store {
	case common.StoreFile:
		return fstore.Open(config.Path, nil)
	case common.StoreMmap:
		return mstore.Open(config.Path, nil)
	case common.StoreMemory:
		return estore.Open(nil)
	default:
		return nil, fmt.Errorf("invalid store %s", config.Store)
	}
}

// OpenMap opens the map whose header the store root points to, or creates one
// and records it as the root. Keys are strings, values raw bytes.
func OpenMap(st store.IStore, config *common.EngineConfig) (db.IMap[string, []byte], error) {
	opts, err := config.Options()
	if err != nil {
		return nil, err
	}
	keys, values := serializer.StringKeys(), serializer.NewBytesSerializer()

	if root := st.Root(); root != store.NilPosition {
		switch config.Engine {
		case db.ImplSkipList:
			return skiplist.Open(st, root, keys, values, opts)
		case db.ImplBitmap:
			return bitmap.Open(st, root, keys, values, opts)
		case db.ImplTrie:
			return trie.Open(st, root, keys, values, opts)
		}
		return nil, fmt.Errorf("invalid engine %s", config.Engine)
	}

	var m db.IMap[string, []byte]
	switch config.Engine {
	case db.ImplSkipList:
		m, err = skiplist.New(st, keys, values, opts)
	case db.ImplBitmap:
		m, err = bitmap.New(st, keys, values, opts)
	case db.ImplTrie:
		m, err = trie.New(st, keys, values, opts)
	default:
		err = fmt.Errorf("invalid engine %s", config.Engine)
	}
	if err != nil {
		return nil, err
	}
	if err := st.SetRoot(m.HeaderPosition()); err != nil {
		return nil, errors.Join(err, m.Close())
	}
	return m, nil
}
