package lockmgr

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultBuckets is the number of buckets used when none is configured.
const DefaultBuckets = 256

// Stamp identifies a lock held on a bucket. It must be handed back to the
// matching release call unchanged.
type Stamp struct {
	bucket int
	token  *xsync.RToken // nil for exclusive stamps
	write  bool
}

// Bucket returns the bucket index the stamp belongs to.
func (s Stamp) Bucket() int { return s.bucket }

// BucketLock maps resources onto a fixed number of reader-biased locks. Besides
// the ILockStrategy methods it offers explicit stamp based locking for callers
// that cannot wrap their critical section in a closure.
type BucketLock struct {
	counters
	buckets []*xsync.RBMutex
}

// NewBucketLock creates a bucket lock with n buckets (DefaultBuckets if n <= 0).
func NewBucketLock(n int) *BucketLock {
	if n <= 0 {
		n = DefaultBuckets
	}
	l := &BucketLock{
		counters: newCounters(),
		buckets:  make([]*xsync.RBMutex, n),
	}
	for i := range l.buckets {
		l.buckets[i] = xsync.NewRBMutex()
	}
	return l
}

// BucketOf returns the bucket index resource is mapped to.
func (l *BucketLock) BucketOf(resource uint64) int {
	return int(resource % uint64(len(l.buckets)))
}

// RLock acquires the shared lock of the bucket of resource.
func (l *BucketLock) RLock(resource uint64) Stamp {
	b := l.BucketOf(resource)
	l.reads.Inc()
	return Stamp{bucket: b, token: l.buckets[b].RLock()}
}

// RUnlock releases a shared lock. It panics if stamp was not returned by RLock
// of this lock.
func (l *BucketLock) RUnlock(stamp Stamp) {
	if stamp.write || stamp.token == nil || stamp.bucket >= len(l.buckets) {
		panic(fmt.Sprintf("lockmgr: invalid read stamp for bucket %d", stamp.bucket))
	}
	l.buckets[stamp.bucket].RUnlock(stamp.token)
}

// Lock acquires the exclusive lock of the bucket of resource.
func (l *BucketLock) Lock(resource uint64) Stamp {
	b := l.BucketOf(resource)
	l.buckets[b].Lock()
	l.writes.Inc()
	return Stamp{bucket: b, write: true}
}

// Unlock releases an exclusive lock. It panics if stamp was not returned by Lock
// of this lock.
func (l *BucketLock) Unlock(stamp Stamp) {
	if !stamp.write || stamp.bucket >= len(l.buckets) {
		panic(fmt.Sprintf("lockmgr: invalid write stamp for bucket %d", stamp.bucket))
	}
	l.buckets[stamp.bucket].Unlock()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockStrategy)
// --------------------------------------------------------------------------

func (l *BucketLock) Read(resource uint64, fn func() error) error {
	stamp := l.RLock(resource)
	defer l.RUnlock(stamp)
	return fn()
}

func (l *BucketLock) Write(resource uint64, fn func() error) error {
	stamp := l.Lock(resource)
	defer l.Unlock(stamp)
	return fn()
}

// All locks the buckets in ascending order and releases them in reverse.
func (l *BucketLock) All(fn func() error) error {
	for _, b := range l.buckets {
		b.Lock()
	}
	defer func() {
		for i := len(l.buckets) - 1; i >= 0; i-- {
			l.buckets[i].Unlock()
		}
	}()
	l.full.Inc()
	return fn()
}

func (l *BucketLock) Name() string { return StrategyBucket }

func (l *BucketLock) Stats() Stats { return l.stats(StrategyBucket, len(l.buckets)) }
