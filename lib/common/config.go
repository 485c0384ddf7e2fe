package common

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Engine configuration struct
// --------------------------------------------------------------------------

// StoreKind selects the backend of a store.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreMmap   StoreKind = "mmap"
	StoreMemory StoreKind = "memory"
)

// EngineConfig holds everything needed to open a store and the map inside it.
type EngineConfig struct {
	// Store backend and its file (ignored for memory)
	Store StoreKind
	Path  string

	// Map implementation and its options
	Engine      db.Implementation
	LoadFactor  int
	MaxLevel    int
	CacheSize   int
	Reclaim     string
	Lock        string // empty selects the default of the engine
	LockBuckets int

	// Logging configuration
	LogLevel string
}

// DefaultEngineConfig returns the configuration used when nothing is set.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Store:       StoreFile,
		Path:        "skipstore.db",
		Engine:      db.ImplSkipList,
		LoadFactor:  db.DefaultLoadFactor,
		MaxLevel:    db.DefaultMaxLevel,
		CacheSize:   db.DefaultCacheSize,
		Reclaim:     db.ReclaimImmediate.String(),
		LockBuckets: lockmgr.DefaultBuckets,
		LogLevel:    "info",
	}
}

// Validate checks the enumerated fields.
func (c *EngineConfig) Validate() error {
	switch c.Store {
	case StoreFile, StoreMmap:
		if c.Path == "" {
			return fmt.Errorf("store %s needs a path", c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store %q (expected file, mmap or memory)", c.Store)
	}

	switch c.Engine {
	case db.ImplSkipList, db.ImplBitmap, db.ImplTrie:
	default:
		return fmt.Errorf("invalid engine %q (expected %s, %s or %s)", c.Engine, db.ImplSkipList, db.ImplBitmap, db.ImplTrie)
	}

	if _, err := db.ParseReclaimPolicy(c.Reclaim); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Options converts the configuration into map options.
func (c *EngineConfig) Options() (*db.Options, error) {
	reclaim, err := db.ParseReclaimPolicy(c.Reclaim)
	if err != nil {
		return nil, err
	}

	opts := db.DefaultOptions()
	opts.LoadFactor = c.LoadFactor
	opts.MaxLevel = c.MaxLevel
	opts.CacheSize = c.CacheSize
	opts.Reclaim = reclaim
	if c.Lock != "" {
		if opts.Lock, err = lockmgr.New(c.Lock, c.LockBuckets); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// String returns a formatted string representation of the configuration
func (c *EngineConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Backend", string(c.Store))
	if c.Store != StoreMemory {
		addField("Path", c.Path)
	}

	addSection("Engine")
	addField("Implementation", string(c.Engine))
	if c.Engine != db.ImplSkipList {
		addField("Load Factor", fmt.Sprint(c.LoadFactor))
		addField("Cache Size", fmt.Sprint(c.CacheSize))
	}
	addField("Max Level", fmt.Sprint(c.MaxLevel))
	addField("Reclaim", c.Reclaim)

	addSection("Locking")
	lock := c.Lock
	if lock == "" {
		lock = "default"
	}
	addField("Strategy", lock)
	if c.Lock == lockmgr.StrategyBucket {
		addField("Buckets", fmt.Sprint(c.LockBuckets))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
