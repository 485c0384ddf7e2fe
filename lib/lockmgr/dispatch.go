package lockmgr

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// dispatchEntry is the lock of one resource. refs counts the goroutines holding
// or waiting for it; the entry is dropped from the table when it reaches zero.
type dispatchEntry struct {
	sync.RWMutex
	refs int
}

// dispatchLock hands out one lock per resource. A gate lock is held shared by
// every resource operation and exclusively by All.
type dispatchLock struct {
	counters
	gate  sync.RWMutex
	locks *xsync.MapOf[uint64, *dispatchEntry]
}

// NewDispatchLock returns a strategy with an individual lock per resource. Only
// resources that are currently locked or waited for occupy an entry.
func NewDispatchLock() ILockStrategy {
	return &dispatchLock{
		counters: newCounters(),
		locks:    xsync.NewMapOf[uint64, *dispatchEntry](),
	}
}

// acquire returns the entry of resource and registers the caller with it.
func (l *dispatchLock) acquire(resource uint64) *dispatchEntry {
	e, _ := l.locks.Compute(resource, func(e *dispatchEntry, loaded bool) (*dispatchEntry, bool) {
		if !loaded {
			e = &dispatchEntry{}
		}
		e.refs++
		return e, false
	})
	return e
}

// release unregisters the caller and drops the entry once nobody uses it.
func (l *dispatchLock) release(resource uint64) {
	l.locks.Compute(resource, func(e *dispatchEntry, loaded bool) (*dispatchEntry, bool) {
		if !loaded {
			return e, true
		}
		e.refs--
		return e, e.refs == 0
	})
}

func (l *dispatchLock) Read(resource uint64, fn func() error) error {
	l.gate.RLock()
	defer l.gate.RUnlock()

	e := l.acquire(resource)
	defer l.release(resource)
	e.RLock()
	defer e.RUnlock()
	l.reads.Inc()
	return fn()
}

func (l *dispatchLock) Write(resource uint64, fn func() error) error {
	l.gate.RLock()
	defer l.gate.RUnlock()

	e := l.acquire(resource)
	defer l.release(resource)
	e.Lock()
	defer e.Unlock()
	l.writes.Inc()
	return fn()
}

func (l *dispatchLock) All(fn func() error) error {
	l.gate.Lock()
	defer l.gate.Unlock()
	l.full.Inc()
	return fn()
}

func (l *dispatchLock) Name() string { return StrategyDispatch }

// Stats reports the number of resources currently locked or waited for as Locks.
func (l *dispatchLock) Stats() Stats { return l.stats(StrategyDispatch, l.locks.Size()) }
