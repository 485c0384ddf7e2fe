package db

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/skipstore/lib/db/util"
	"github.com/ValentinKolb/skipstore/lib/lockmgr"
	"github.com/ValentinKolb/skipstore/lib/serializer"
	"github.com/ValentinKolb/skipstore/lib/store"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplSkipList Implementation = "skiplist"
	ImplBitmap   Implementation = "bitmap"
	ImplTrie     Implementation = "trie"
)

// Feature represents map capabilities as bit flags
type Feature uint64

const (
	FeatureOrderedRange Feature = 1 << iota // Range visits keys in ascending order
	FeatureSharded                          // Keys are spread over hash shards
	FeatureFieldAccess                      // GetFieldByReference is available
	FeatureConcurrent                       // Safe for concurrent use
)

func (f Feature) String() string {
	switch f {
	case FeatureOrderedRange:
		return "OrderedRange"
	case FeatureSharded:
		return "Sharded"
	case FeatureFieldAccess:
		return "FieldAccess"
	case FeatureConcurrent:
		return "Concurrent"
	default:
		return "Unknown"
	}
}

// Features expands a flag set into its single features.
func (f Feature) Features() []Feature {
	var out []Feature
	for bit := FeatureOrderedRange; bit <= FeatureConcurrent; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// ReclaimPolicy decides what happens to the bytes of unlinked nodes and replaced
// records.
type ReclaimPolicy uint8

const (
	// ReclaimDefault is the zero value and selects ReclaimImmediate.
	ReclaimDefault ReclaimPolicy = iota
	// ReclaimNone leaves the bytes in place. Stale references keep resolving to
	// a tombstone instead of foreign data.
	ReclaimNone
	// ReclaimImmediate deallocates the bytes inside the mutating operation.
	ReclaimImmediate
	// ReclaimDeferred hands the bytes to a background reclaimer; Flush and Close
	// wait until it caught up.
	ReclaimDeferred
)

func (p ReclaimPolicy) String() string {
	switch p {
	case ReclaimDefault:
		return "default"
	case ReclaimNone:
		return "none"
	case ReclaimImmediate:
		return "immediate"
	case ReclaimDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// ParseReclaimPolicy parses the names returned by ReclaimPolicy.String.
func ParseReclaimPolicy(s string) (ReclaimPolicy, error) {
	for _, p := range []ReclaimPolicy{ReclaimNone, ReclaimImmediate, ReclaimDeferred} {
		if p.String() == s {
			return p, nil
		}
	}
	return ReclaimNone, fmt.Errorf("unknown reclaim policy %q (expected none, immediate or deferred)", s)
}

// Entry is a key/value pair for PutAll.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a map. Fields that do not apply to an implementation are ignored.
type Options struct {
	// Lock guards the map. nil selects the implementation default: global for
	// the skip list, bucket for the bitmap and dispatch for the trie.
	Lock lockmgr.ILockStrategy
	// Reclaim is the policy for unlinked nodes and replaced records. The zero
	// value selects ReclaimImmediate.
	Reclaim ReclaimPolicy
	// MaxLevel caps the height of every skip list.
	MaxLevel int
	// LoadFactor is the number of hash digits routing a key (combinators only).
	// It is fixed at creation and read from the header on open.
	LoadFactor int
	// CacheSize bounds the shard cache (combinators only). 0 selects
	// DefaultCacheSize, CacheDisabled turns the cache off.
	CacheSize int
	// Fields describes the binary layout of values for GetFieldByReference.
	Fields *serializer.FieldTable
}

// Zero fields of Options select these defaults.
const (
	DefaultMaxLevel   = 24
	DefaultLoadFactor = 2
	DefaultCacheSize  = 4096

	// CacheDisabled is the CacheSize that turns the shard cache off.
	CacheDisabled = -1
)

// DefaultOptions returns the default map options
func DefaultOptions() *Options {
	return &Options{
		Reclaim:    ReclaimImmediate,
		MaxLevel:   DefaultMaxLevel,
		LoadFactor: DefaultLoadFactor,
		CacheSize:  DefaultCacheSize,
	}
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrInvalidLoadFactor is returned for a load factor outside the range of an implementation.
	ErrInvalidLoadFactor = errors.New("db: invalid load factor")
	// ErrKeyOrder is returned when a map is created without a key codec.
	// Every index requires a total order on its keys.
	ErrKeyOrder = errors.New("db: keys must have a total order")
	// ErrNoFieldTable is returned by GetFieldByReference if no field table is configured.
	ErrNoFieldTable = errors.New("db: no field table configured")
	// ErrClosed is returned by every operation on a closed map.
	ErrClosed = errors.New("db: map is closed")
)

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// TimerInfo summarizes an operation timer (durations in nanoseconds).
type TimerInfo struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean_ns"`
	P50   float64 `json:"p50_ns"`
	P99   float64 `json:"p99_ns"`
	Rate1 float64 `json:"rate_1m"`
}

// HistogramInfo summarizes a sampled histogram.
type HistogramInfo struct {
	Count int64   `json:"count"`
	Min   int64   `json:"min"`
	Max   int64   `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P99   float64 `json:"p99"`
}

// Info describes the state of a map.
type Info struct {
	Implementation    Implementation          `json:"implementation"`
	SupportedFeatures []Feature               `json:"supported_features"`
	Len               uint64                  `json:"len"`
	HeaderPosition    store.Position          `json:"header_position"`
	Seed              uint64                  `json:"seed"`
	LoadFactor        int                     `json:"load_factor,omitempty"`
	MaxLevel          int                     `json:"max_level"`
	Reclaim           string                  `json:"reclaim"`
	Lock              lockmgr.Stats           `json:"lock"`
	Store             store.Stats             `json:"store"`
	Operations        map[string]TimerInfo    `json:"operations"`
	RecordSizes       HistogramInfo           `json:"record_sizes"`
	InsertLevels      HistogramInfo           `json:"insert_levels"`
	Reclaimer         *util.ReclaimerStats    `json:"reclaimer,omitempty"`
	Cache             *util.CacheStats        `json:"cache,omitempty"`
	Shards            *util.DistributionStats `json:"shards,omitempty"`
	StructureNodes    int64                   `json:"structure_nodes,omitempty"`
}

// --------------------------------------------------------------------------
// Map Interface
// --------------------------------------------------------------------------

// IMap is a persistent map on top of a store.IStore. Values are stored as
// records; each record has a reference (a uint64) that stays stable across
// updates of its value and can be used instead of the key.
//
// Not-found is never an error: lookups return loaded=false. Errors are I/O,
// capacity or decode faults of the store (see store.Error, store.BufferingError).
type IMap[K, V any] interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or updates key. If the key existed, the previous value is
	// returned with replaced=true and the record count is unchanged.
	Put(key K, value V) (old V, replaced bool, err error)

	// PutAll puts every entry in order.
	PutAll(entries []Entry[K, V]) (err error)

	// Remove deletes key and returns the removed value.
	Remove(key K) (old V, removed bool, err error)

	// Clear removes all entries. The old structure is orphaned, not reclaimed.
	Clear() (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the value stored for key.
	Get(key K) (value V, loaded bool, err error)

	// ContainsKey reports whether key is present.
	ContainsKey(key K) (ok bool, err error)

	// ContainsValue reports whether any entry holds value. Values with equal
	// serialized bytes match; others are decoded and compared with
	// reflect.DeepEqual. This is a full scan.
	ContainsValue(value V) (ok bool, err error)

	// GetRecordReference returns the stable reference of the record of key.
	GetRecordReference(key K) (ref uint64, loaded bool, err error)

	// GetByReference returns the value of the record ref points to.
	GetByReference(ref uint64) (value V, loaded bool, err error)

	// GetFieldByReference decodes a single field of the record ref points to
	// without decoding the whole value. Requires Options.Fields.
	GetFieldByReference(ref uint64, field string) (value any, loaded bool, err error)

	// Above returns the references of all records with key > key (>= if inclusive).
	Above(key K, inclusive bool) (refs *roaring64.Bitmap, err error)

	// Below returns the references of all records with key < key (<= if inclusive).
	Below(key K, inclusive bool) (refs *roaring64.Bitmap, err error)

	// Range calls fn for every entry until fn returns false. Entries are visited in
	// ascending key order if the map supports FeatureOrderedRange, otherwise in key
	// order per shard. fn must not modify the map.
	Range(fn func(key K, value V) bool) (err error)

	// Len returns the number of entries.
	Len() (n uint64)

	// --------------------------------------------------------------------------
	// Lifecycle & Metadata
	// --------------------------------------------------------------------------

	// HeaderPosition returns the position of the map header. Passing it to the
	// Open function of the implementation reopens the map.
	HeaderPosition() (pos store.Position)

	// SupportsFeature reports whether all given features are supported.
	SupportsFeature(feature Feature) (ok bool)

	// Info returns information about the map.
	Info() (info Info)

	// Flush persists the header and waits for pending reclamation.
	Flush() (err error)

	// Close flushes the map and releases its resources. The store stays open.
	Close() (err error)
}
