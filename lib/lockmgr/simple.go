package lockmgr

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// counters is shared by all strategies.
type counters struct {
	reads  *xsync.Counter
	writes *xsync.Counter
	full   *xsync.Counter
}

func newCounters() counters {
	return counters{
		reads:  xsync.NewCounter(),
		writes: xsync.NewCounter(),
		full:   xsync.NewCounter(),
	}
}

func (c counters) stats(name string, locks int) Stats {
	return Stats{
		Strategy: name,
		Reads:    c.reads.Value(),
		Writes:   c.writes.Value(),
		Full:     c.full.Value(),
		Locks:    locks,
	}
}

// --------------------------------------------------------------------------
// No locking
// --------------------------------------------------------------------------

type noLock struct {
	counters
}

// NewNoLock returns a strategy that never blocks. It is only correct for
// single-threaded use or when the caller serializes access itself.
func NewNoLock() ILockStrategy {
	return &noLock{counters: newCounters()}
}

func (l *noLock) Read(_ uint64, fn func() error) error {
	l.reads.Inc()
	return fn()
}

func (l *noLock) Write(_ uint64, fn func() error) error {
	l.writes.Inc()
	return fn()
}

func (l *noLock) All(fn func() error) error {
	l.full.Inc()
	return fn()
}

func (l *noLock) Name() string { return StrategyNone }

func (l *noLock) Stats() Stats { return l.stats(StrategyNone, 0) }

// --------------------------------------------------------------------------
// Global lock
// --------------------------------------------------------------------------

type globalLock struct {
	counters
	mu sync.RWMutex
}

// NewGlobalLock returns a strategy with a single reader/writer lock for all resources.
func NewGlobalLock() ILockStrategy {
	return &globalLock{counters: newCounters()}
}

func (l *globalLock) Read(_ uint64, fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.reads.Inc()
	return fn()
}

func (l *globalLock) Write(_ uint64, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes.Inc()
	return fn()
}

func (l *globalLock) All(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.full.Inc()
	return fn()
}

func (l *globalLock) Name() string { return StrategyGlobal }

func (l *globalLock) Stats() Stats { return l.stats(StrategyGlobal, 1) }
