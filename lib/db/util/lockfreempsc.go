package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the queue.
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is an unbounded multi-producer single-consumer queue. Producers
// append with compare-and-swap on the tail, a single internal goroutine moves the
// items to the channel returned by Recv. Items pushed concurrently are delivered in
// the order their append succeeded.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a queue and starts its consumer goroutine.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}
	q := &LockFreeMPSC[T]{out: make(chan *T)}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()
	return q
}

// Push appends value. It returns false if value is nil or the queue is closed.
//
// Thread-safety: safe for any number of concurrent producers.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var spins uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed swap means another producer already advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.signal()
				return true
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}

		// exponential backoff under contention
		if spins < 10 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

func (q *LockFreeMPSC[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume forwards items to out until the queue is closed and drained.
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.out)

	for {
		drained := true
		for {
			next := q.head.Load().next.Load()
			if next == nil {
				break
			}
			drained = false
			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if drained {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil {
				if q.closed.Load() {
					q.mu.Unlock()
					return
				}
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel items are delivered on. It is closed once the queue
// is closed and every pushed item was delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close stops accepting new items. Items already pushed are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.signal()
}

// IsClosed reports whether Close was called.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}
