package lockmgr

import "fmt"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ILockStrategy guards the resources of an index. A resource is an opaque
// uint64 chosen by the caller (a shard id, a node position or simply 0). Two
// operations on resources that map to different locks never block each other.
type ILockStrategy interface {
	// Read runs fn while holding the shared lock for resource.
	Read(resource uint64, fn func() error) error
	// Write runs fn while holding the exclusive lock for resource.
	Write(resource uint64, fn func() error) error
	// All runs fn while holding every lock of the strategy exclusively.
	All(fn func() error) error
	// Name returns the strategy name as used in configuration.
	Name() string
	// Stats returns a snapshot of acquisition counters.
	Stats() Stats
}

// Stats counts lock acquisitions of a strategy.
type Stats struct {
	Strategy string `json:"strategy"`
	Reads    int64  `json:"reads"`
	Writes   int64  `json:"writes"`
	Full     int64  `json:"full"`
	// Locks is the number of distinct locks (buckets or dispatched resources).
	Locks int `json:"locks"`
}

// Strategy names accepted by New.
const (
	StrategyNone     = "none"
	StrategyGlobal   = "global"
	StrategyBucket   = "bucket"
	StrategyDispatch = "dispatch"
)

// New creates a strategy by name. buckets is only used by the bucket strategy.
func New(name string, buckets int) (ILockStrategy, error) {
	switch name {
	case StrategyNone:
		return NewNoLock(), nil
	case StrategyGlobal:
		return NewGlobalLock(), nil
	case StrategyBucket:
		return NewBucketLock(buckets), nil
	case StrategyDispatch:
		return NewDispatchLock(), nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q (expected %s, %s, %s or %s)",
			name, StrategyNone, StrategyGlobal, StrategyBucket, StrategyDispatch)
	}
}
