package lockmgr

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const blockTimeout = 100 * time.Millisecond

// holdWrite takes the write lock of resource in a goroutine and keeps it until
// release is closed. It returns once the lock is held.
func holdWrite(t *testing.T, l ILockStrategy, resource uint64, release <-chan struct{}) {
	t.Helper()
	held := make(chan struct{})
	go func() {
		_ = l.Write(resource, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	select {
	case <-held:
	case <-time.After(time.Second):
		t.Fatal("could not acquire initial lock")
	}
}

// completes reports whether op finishes within blockTimeout.
func completes(op func()) bool {
	done := make(chan struct{})
	go func() {
		op()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(blockTimeout):
		return false
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{StrategyNone, StrategyGlobal, StrategyBucket, StrategyDispatch} {
		l, err := New(name, 16)
		require.NoError(t, err)
		assert.Equal(t, name, l.Name())
	}
	_, err := New("optimistic", 0)
	assert.Error(t, err)
}

func TestBucketDifferentBucketsDoNotBlock(t *testing.T) {
	l := NewBucketLock(16)
	release := make(chan struct{})
	defer close(release)

	holdWrite(t, l, 1, release)

	assert.True(t, completes(func() {
		_ = l.Write(2, func() error { return nil })
	}), "write to another bucket was blocked")
	assert.True(t, completes(func() {
		_ = l.Read(3, func() error { return nil })
	}), "read of another bucket was blocked")
}

func TestBucketSameBucketSerializes(t *testing.T) {
	l := NewBucketLock(16)
	release := make(chan struct{})

	holdWrite(t, l, 1, release)

	// 17 maps onto the same bucket as 1
	var ran atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = l.Write(17, func() error {
			ran.Store(true)
			return nil
		})
		close(done)
	}()

	time.Sleep(blockTimeout)
	assert.False(t, ran.Load(), "write to a held bucket did not block")

	close(release)
	<-done
	assert.True(t, ran.Load())
}

func TestBucketStamps(t *testing.T) {
	l := NewBucketLock(8)

	rs := l.RLock(42)
	assert.Equal(t, 42%8, rs.Bucket())
	assert.Panics(t, func() { l.Unlock(rs) })
	l.RUnlock(rs)

	ws := l.Lock(42)
	assert.Panics(t, func() { l.RUnlock(ws) })
	l.Unlock(ws)

	assert.Panics(t, func() { l.RUnlock(Stamp{}) })
}

func TestDispatchIndependentResources(t *testing.T) {
	l := NewDispatchLock()
	release := make(chan struct{})
	defer close(release)

	holdWrite(t, l, 7, release)

	assert.True(t, completes(func() {
		_ = l.Write(8, func() error { return nil })
	}))
	assert.False(t, completes(func() {
		_ = l.Read(7, func() error { return nil })
	}))
}

func TestAllExcludesEverything(t *testing.T) {
	for _, l := range []ILockStrategy{NewGlobalLock(), NewBucketLock(4), NewDispatchLock()} {
		l := l
		t.Run(l.Name(), func(t *testing.T) {
			release := make(chan struct{})
			holdWrite(t, l, 3, release)

			assert.False(t, completes(func() {
				_ = l.All(func() error { return nil })
			}), "All did not wait for a held lock")

			close(release)
			assert.True(t, completes(func() {
				_ = l.All(func() error { return nil })
			}))
		})
	}
}

func TestNoLostUpdates(t *testing.T) {
	for _, l := range []ILockStrategy{NewGlobalLock(), NewBucketLock(4), NewDispatchLock()} {
		l := l
		t.Run(l.Name(), func(t *testing.T) {
			counter := 0
			var g errgroup.Group
			for w := 0; w < 8; w++ {
				g.Go(func() error {
					for i := 0; i < 1000; i++ {
						if err := l.Write(5, func() error {
							counter++
							return nil
						}); err != nil {
							return err
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, 8000, counter)
		})
	}
}

func TestDispatchDropsIdleLocks(t *testing.T) {
	l := NewDispatchLock()
	for r := uint64(0); r < 10_000; r++ {
		require.NoError(t, l.Write(r, func() error { return nil }))
		require.NoError(t, l.Read(r<<20, func() error { return nil }))
	}
	assert.Equal(t, 0, l.Stats().Locks)

	release := make(chan struct{})
	holdWrite(t, l, 7, release)
	assert.Equal(t, 1, l.Stats().Locks)

	// a waiter shares the entry of the holder
	assert.False(t, completes(func() {
		_ = l.Read(7, func() error { return nil })
	}))
	assert.Equal(t, 1, l.Stats().Locks)

	close(release)
	assert.Eventually(t, func() bool { return l.Stats().Locks == 0 }, time.Second, time.Millisecond)
}
