package util

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 3; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case v := <-q.Recv():
			if *v != i {
				t.Errorf("Expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for item")
		}
	}

	if q.Push(nil) {
		t.Error("Push(nil) should be rejected")
	}
	q.Close()
}

func TestConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perWorker = 1000
	)

	q := NewLockFreeMPSC[int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v := p*perWorker + i
				q.Push(&v)
			}
		}()
	}

	received := make([]int, 0, producers*perWorker)
	done := make(chan struct{})
	go func() {
		for v := range q.Recv() {
			received = append(received, *v)
		}
		close(done)
	}()

	wg.Wait()
	q.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consumer did not finish after Close")
	}

	if len(received) != producers*perWorker {
		t.Fatalf("Expected %d items, got %d", producers*perWorker, len(received))
	}
	sort.Ints(received)
	for i, v := range received {
		if v != i {
			t.Fatalf("Missing or duplicate item around %d", i)
		}
	}
}

func TestCloseQueue(t *testing.T) {
	q := NewLockFreeMPSC[string]()
	v := "pending"
	q.Push(&v)
	q.Close()

	if !q.IsClosed() {
		t.Error("Queue should report closed")
	}
	if q.Push(&v) {
		t.Error("Push after Close should fail")
	}

	got, ok := <-q.Recv()
	if !ok || *got != "pending" {
		t.Errorf("Item pushed before Close was not delivered")
	}
	if _, ok := <-q.Recv(); ok {
		t.Error("Channel should be closed after draining")
	}
}
