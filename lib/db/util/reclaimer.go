package util

import (
	"sync"
	"sync/atomic"
)

// Span is a byte range waiting to be handed back to a store.
type Span struct {
	Pos  uint64
	Size uint32
}

// Reclaimer frees spans in the background. Writers push unlinked node and record
// spans and return immediately; a single goroutine drains the queue and calls the
// free function. Flush waits until everything pushed so far has been freed.
//
// Thread-safety: Defer, Flush and Stats are safe for concurrent use.
type Reclaimer struct {
	queue   *LockFreeMPSC[Span]
	free    func(pos uint64, size uint32) error
	onError func(Span, error)

	pending  atomic.Int64
	freed    atomic.Uint64
	failures atomic.Uint64

	mu   sync.Mutex
	idle *sync.Cond
	done chan struct{}
}

// NewReclaimer starts a reclaimer. onError is called from the background goroutine
// for spans that could not be freed and may be nil.
func NewReclaimer(free func(pos uint64, size uint32) error, onError func(Span, error)) *Reclaimer {
	r := &Reclaimer{
		queue:   NewLockFreeMPSC[Span](),
		free:    free,
		onError: onError,
		done:    make(chan struct{}),
	}
	r.idle = sync.NewCond(&r.mu)
	go r.run()
	return r
}

func (r *Reclaimer) run() {
	defer close(r.done)

	for s := range r.queue.Recv() {
		if err := r.free(s.Pos, s.Size); err != nil {
			r.failures.Add(1)
			if r.onError != nil {
				r.onError(*s, err)
			}
		} else {
			r.freed.Add(1)
		}

		if r.pending.Add(-1) == 0 {
			r.mu.Lock()
			r.idle.Broadcast()
			r.mu.Unlock()
		}
	}
}

// Defer schedules a span for reclamation. It returns false after Close.
func (r *Reclaimer) Defer(pos uint64, size uint32) bool {
	r.pending.Add(1)
	if !r.queue.Push(&Span{Pos: pos, Size: size}) {
		r.pending.Add(-1)
		return false
	}
	return true
}

// Flush blocks until every span deferred before the call has been processed.
func (r *Reclaimer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.pending.Load() > 0 {
		r.idle.Wait()
	}
}

// Close processes the remaining spans and stops the background goroutine.
func (r *Reclaimer) Close() {
	r.queue.Close()
	<-r.done
}

// ReclaimerStats is a snapshot of reclaimer counters.
type ReclaimerStats struct {
	Pending  int64  `json:"pending"`
	Freed    uint64 `json:"freed"`
	Failures uint64 `json:"failures"`
}

// Stats returns a snapshot of the reclaimer counters.
func (r *Reclaimer) Stats() ReclaimerStats {
	return ReclaimerStats{
		Pending:  r.pending.Load(),
		Freed:    r.freed.Load(),
		Failures: r.failures.Load(),
	}
}
