package testing

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/skipstore/lib/db"
	"github.com/ValentinKolb/skipstore/lib/store"
	"golang.org/x/sync/errgroup"
)

// Fixture is a freshly created, empty map plus a way to reopen it from its header
// in the same store. Floats, if set, creates an empty map with float64 keys and
// the same implementation and options in the same store.
type Fixture struct {
	Map    db.IMap[int64, string]
	Reopen func(pos store.Position) (db.IMap[int64, string], error)
	Floats func() (db.IMap[float64, string], error)
}

// MapFactory creates a new fixture for every sub test.
type MapFactory func(t testing.TB) Fixture

// RunMapTests runs a comprehensive test suite for an IMap implementation.
func RunMapTests(t *testing.T, name string, factory MapFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t).Map)
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory(t).Map)
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t).Map)
		})

		t.Run("ContainsValue", func(t *testing.T) {
			testContainsValue(t, factory(t).Map)
		})

		t.Run("PutAll", func(t *testing.T) {
			testPutAll(t, factory(t).Map)
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t).Map)
		})

		t.Run("References", func(t *testing.T) {
			testReferences(t, factory(t).Map)
		})

		t.Run("RangeQueries", func(t *testing.T) {
			testRangeQueries(t, factory(t).Map)
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory(t).Map)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t).Map)
		})

		t.Run("FloatKeys", func(t *testing.T) {
			testFloatKeys(t, factory(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})

		t.Run("ConcurrentSameKey", func(t *testing.T) {
			testConcurrentSameKey(t, factory(t).Map)
		})

		t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
			testConcurrentDistinctKeys(t, factory(t).Map)
		})

		t.Run("ConcurrentReferences", func(t *testing.T) {
			testConcurrentReferences(t, factory(t).Map)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t).Map)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the map supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, m db.IMap[int64, string], feature db.Feature) {
	if !m.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustPut(t testing.TB, m db.IMap[int64, string], key int64, value string) {
	t.Helper()
	if _, _, err := m.Put(key, value); err != nil {
		t.Fatalf("Put(%d) failed: %v", key, err)
	}
}

func valueOf(key int64) string {
	return fmt.Sprintf("value-%d", key)
}

// refsOf resolves the record references of keys.
func refsOf(t testing.TB, m db.IMap[int64, string], keys []int64) *roaring64.Bitmap {
	t.Helper()
	refs := roaring64.New()
	for _, k := range keys {
		ref, ok, err := m.GetRecordReference(k)
		if err != nil || !ok {
			t.Fatalf("GetRecordReference(%d) = %v, %v", k, ok, err)
		}
		refs.Add(ref)
	}
	return refs
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	_, replaced, err := m.Put(42, "answer")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if replaced {
		t.Errorf("First Put should not replace anything")
	}

	value, ok, err := m.Get(42)
	if err != nil || !ok {
		t.Fatalf("Expected key 42 to exist after Put, got ok=%v err=%v", ok, err)
	}
	if value != "answer" {
		t.Errorf("Expected value %q, got %q", "answer", value)
	}

	if _, ok, err := m.Get(43); ok || err != nil {
		t.Errorf("Expected missing key to return ok=false without error, got ok=%v err=%v", ok, err)
	}

	if ok, _ := m.ContainsKey(42); !ok {
		t.Errorf("ContainsKey(42) should be true")
	}
	if m.Len() != 1 {
		t.Errorf("Expected Len 1, got %d", m.Len())
	}
}

func testUpdate(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	mustPut(t, m, 7, "first")
	mustPut(t, m, 8, "other")

	old, replaced, err := m.Put(7, "second")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !replaced || old != "first" {
		t.Errorf("Expected replaced=true with old value %q, got %v %q", "first", replaced, old)
	}

	if value, _, _ := m.Get(7); value != "second" {
		t.Errorf("Expected updated value %q, got %q", "second", value)
	}
	if m.Len() != 2 {
		t.Errorf("Update must not change the count, expected 2, got %d", m.Len())
	}
}

func testRemove(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	for i := int64(0); i < 50; i++ {
		mustPut(t, m, i, valueOf(i))
	}

	old, removed, err := m.Remove(25)
	if err != nil || !removed {
		t.Fatalf("Remove(25) = %v, %v", removed, err)
	}
	if old != valueOf(25) {
		t.Errorf("Expected removed value %q, got %q", valueOf(25), old)
	}

	if _, ok, _ := m.Get(25); ok {
		t.Errorf("Key 25 still found after Remove")
	}
	if ok, _ := m.ContainsKey(25); ok {
		t.Errorf("ContainsKey(25) should be false after Remove")
	}
	if m.Len() != 49 {
		t.Errorf("Expected Len 49, got %d", m.Len())
	}

	if _, removed, err := m.Remove(25); removed || err != nil {
		t.Errorf("Second Remove should report removed=false without error, got %v %v", removed, err)
	}

	// neighbours are untouched
	for _, k := range []int64{24, 26} {
		if value, ok, _ := m.Get(k); !ok || value != valueOf(k) {
			t.Errorf("Neighbour %d damaged by Remove: %q %v", k, value, ok)
		}
	}

	// a removed key can be inserted again
	mustPut(t, m, 25, "again")
	if value, _, _ := m.Get(25); value != "again" {
		t.Errorf("Expected re-inserted value, got %q", value)
	}
}

func testContainsValue(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	for i := int64(0); i < 20; i++ {
		mustPut(t, m, i, valueOf(i))
	}

	if ok, err := m.ContainsValue(valueOf(13)); err != nil || !ok {
		t.Errorf("ContainsValue(%q) = %v, %v", valueOf(13), ok, err)
	}
	if ok, _ := m.ContainsValue("missing"); ok {
		t.Errorf("ContainsValue should not find a value that was never stored")
	}

	m.Remove(13)
	if ok, _ := m.ContainsValue(valueOf(13)); ok {
		t.Errorf("ContainsValue found a removed value")
	}
}

func testPutAll(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	entries := make([]db.Entry[int64, string], 100)
	for i := range entries {
		entries[i] = db.Entry[int64, string]{Key: int64(i * 3), Value: valueOf(int64(i * 3))}
	}
	if err := m.PutAll(entries); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	if m.Len() != 100 {
		t.Errorf("Expected Len 100, got %d", m.Len())
	}
	for _, e := range entries {
		if value, ok, _ := m.Get(e.Key); !ok || value != e.Value {
			t.Errorf("Entry %d missing after PutAll", e.Key)
		}
	}
}

func testClear(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	for i := int64(0); i < 100; i++ {
		mustPut(t, m, i, valueOf(i))
	}
	orphan, _, err := m.GetRecordReference(7)
	if err != nil {
		t.Fatalf("GetRecordReference failed: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if m.Len() != 0 {
		t.Errorf("Expected Len 0 after Clear, got %d", m.Len())
	}
	for i := int64(0); i < 100; i++ {
		if _, ok, _ := m.Get(i); ok {
			t.Fatalf("Key %d still found after Clear", i)
		}
	}

	mustPut(t, m, 5, "after")
	if value, ok, _ := m.Get(5); !ok || value != "after" {
		t.Errorf("Map not usable after Clear")
	}
	if m.Len() != 1 {
		t.Errorf("Expected Len 1, got %d", m.Len())
	}

	// Clear orphans the old structure without reclaiming it, so a reference
	// taken before keeps resolving to the old record
	if value, ok, err := m.GetByReference(orphan); err != nil || !ok || value != valueOf(7) {
		t.Errorf("Expected orphaned reference to resolve to %q, got %q (ok=%v, err=%v)", valueOf(7), value, ok, err)
	}
	if _, ok, _ := m.Get(7); ok {
		t.Errorf("Key 7 found through the new structure after Clear")
	}
}

func testReferences(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	for i := int64(0); i < 30; i++ {
		mustPut(t, m, i, valueOf(i))
	}

	ref, ok, err := m.GetRecordReference(17)
	if err != nil || !ok {
		t.Fatalf("GetRecordReference(17) = %v, %v", ok, err)
	}

	value, ok, err := m.GetByReference(ref)
	if err != nil || !ok || value != valueOf(17) {
		t.Fatalf("GetByReference = %q, %v, %v", value, ok, err)
	}

	// the reference survives an update of the value
	mustPut(t, m, 17, "updated")
	ref2, _, _ := m.GetRecordReference(17)
	if ref2 != ref {
		t.Errorf("Reference changed on update: %d -> %d", ref, ref2)
	}
	if value, _, _ := m.GetByReference(ref); value != "updated" {
		t.Errorf("Expected updated value by reference, got %q", value)
	}

	// and stops resolving once the key is gone
	m.Remove(17)
	if _, ok, err := m.GetByReference(ref); ok || err != nil {
		t.Errorf("Reference of a removed key resolved: ok=%v err=%v", ok, err)
	}

	for _, bogus := range []uint64{0, 1, 63, math.MaxUint64} {
		if _, ok, err := m.GetByReference(bogus); ok || err != nil {
			t.Errorf("Bogus reference %d resolved: ok=%v err=%v", bogus, ok, err)
		}
	}

	if _, ok, _ := m.GetRecordReference(1000); ok {
		t.Errorf("Reference for a missing key")
	}

	if m.SupportsFeature(db.FeatureFieldAccess) {
		return
	}
	if _, _, err := m.GetFieldByReference(ref2, "any"); !errors.Is(err, db.ErrNoFieldTable) {
		t.Errorf("Expected ErrNoFieldTable without field table, got %v", err)
	}
}

func testRangeQueries(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	const n = 500
	rnd := rand.New(rand.NewSource(1))
	keys := make([]int64, 0, n)
	seen := map[int64]bool{}
	for len(keys) < n {
		k := rnd.Int63n(10_000) - 5_000
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
		mustPut(t, m, k, valueOf(k))
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	pivots := []int64{sorted[0], sorted[n/3], sorted[n/2], sorted[n-1], sorted[n/2] + 1, -10_000, 10_000}
	for _, pivot := range pivots {
		for _, inclusive := range []bool{true, false} {
			var above, below []int64
			for _, k := range sorted {
				if k > pivot || (inclusive && k == pivot) {
					above = append(above, k)
				}
				if k < pivot || (inclusive && k == pivot) {
					below = append(below, k)
				}
			}

			got, err := m.Above(pivot, inclusive)
			if err != nil {
				t.Fatalf("Above(%d, %v) failed: %v", pivot, inclusive, err)
			}
			if want := refsOf(t, m, above); !got.Equals(want) {
				t.Errorf("Above(%d, %v): expected %d refs, got %d", pivot, inclusive, want.GetCardinality(), got.GetCardinality())
			}

			got, err = m.Below(pivot, inclusive)
			if err != nil {
				t.Fatalf("Below(%d, %v) failed: %v", pivot, inclusive, err)
			}
			if want := refsOf(t, m, below); !got.Equals(want) {
				t.Errorf("Below(%d, %v): expected %d refs, got %d", pivot, inclusive, want.GetCardinality(), got.GetCardinality())
			}
		}
	}
}

func testRange(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	rnd := rand.New(rand.NewSource(3))
	for _, k := range rnd.Perm(300) {
		mustPut(t, m, int64(k), valueOf(int64(k)))
	}

	var visited []int64
	err := m.Range(func(k int64, v string) bool {
		if v != valueOf(k) {
			t.Errorf("Range delivered %q for key %d", v, k)
		}
		visited = append(visited, k)
		return true
	})
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(visited) != 300 {
		t.Fatalf("Expected 300 entries, got %d", len(visited))
	}
	if m.SupportsFeature(db.FeatureOrderedRange) && !slices.IsSorted(visited) {
		t.Errorf("Range of an ordered map is not sorted")
	}
	slices.Sort(visited)
	for i, k := range visited {
		if k != int64(i) {
			t.Fatalf("Range missed or repeated key %d", i)
		}
	}

	count := 0
	m.Range(func(int64, string) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Range did not stop when fn returned false (visited %d)", count)
	}
}

func testEdgeCases(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()

	// an empty map answers everything with not found
	if _, ok, err := m.Get(1); ok || err != nil {
		t.Errorf("Get on empty map: ok=%v err=%v", ok, err)
	}
	if refs, err := m.Above(math.MinInt64, true); err != nil || !refs.IsEmpty() {
		t.Errorf("Above on empty map: %v, %v", refs, err)
	}
	if _, removed, _ := m.Remove(1); removed {
		t.Errorf("Remove on empty map reported removed")
	}

	for _, k := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		mustPut(t, m, k, valueOf(k))
	}
	mustPut(t, m, 2, "")

	if value, ok, err := m.Get(2); err != nil || !ok || value != "" {
		t.Errorf("Empty value: %q, %v, %v", value, ok, err)
	}
	if refs, _ := m.Below(0, false); refs.GetCardinality() != 2 {
		t.Errorf("Expected 2 keys below 0, got %d", refs.GetCardinality())
	}
	if refs, _ := m.Above(math.MaxInt64, true); refs.GetCardinality() != 1 {
		t.Errorf("Expected MaxInt64 to be found inclusive, got %d", refs.GetCardinality())
	}
	if refs, _ := m.Above(math.MaxInt64, false); !refs.IsEmpty() {
		t.Errorf("Expected nothing above MaxInt64")
	}
}

func testReopen(t *testing.T, f Fixture) {
	m := f.Map
	for i := int64(0); i < 200; i++ {
		mustPut(t, m, i, valueOf(i))
	}
	m.Remove(100)
	pos := m.HeaderPosition()
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m, err := f.Reopen(pos)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer m.Close()

	if m.Len() != 199 {
		t.Errorf("Expected Len 199 after reopen, got %d", m.Len())
	}
	for i := int64(0); i < 200; i++ {
		value, ok, err := m.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) after reopen failed: %v", i, err)
		}
		if i == 100 {
			if ok {
				t.Errorf("Removed key found after reopen")
			}
			continue
		}
		if !ok || value != valueOf(i) {
			t.Errorf("Key %d: expected %q, got %q (ok=%v)", i, valueOf(i), value, ok)
		}
	}
}

func testConcurrentSameKey(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()
	requireFeature(t, m, db.FeatureConcurrent)

	const writers = 16
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if _, _, err := m.Put(99, fmt.Sprintf("writer-%d", w)); err != nil {
					return err
				}
				if _, _, err := m.Get(99); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent Put failed: %v", err)
	}

	if m.Len() != 1 {
		t.Errorf("Expected a single insert, got Len %d", m.Len())
	}
	value, ok, _ := m.Get(99)
	if !ok {
		t.Fatalf("Key lost under concurrent writers")
	}
	valid := false
	for w := 0; w < writers; w++ {
		valid = valid || value == fmt.Sprintf("writer-%d", w)
	}
	if !valid {
		t.Errorf("Final value %q was never written", value)
	}
}

func testConcurrentDistinctKeys(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()
	requireFeature(t, m, db.FeatureConcurrent)

	const (
		workers   = 8
		perWorker = 250
	)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				k := int64(w*perWorker + i)
				if _, _, err := m.Put(k, valueOf(k)); err != nil {
					return err
				}
				if i%3 == 0 {
					if _, _, err := m.Remove(k); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	// readers run alongside the writers
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := m.Above(int64(i*10), true); err != nil {
					t.Errorf("Above during writes failed: %v", err)
					return
				}
			}
		}()
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent writers failed: %v", err)
	}
	wg.Wait()

	expected := uint64(0)
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			k := int64(w*perWorker + i)
			_, ok, _ := m.Get(k)
			if (i%3 == 0) == ok {
				t.Fatalf("Key %d: found=%v", k, ok)
			}
			if ok {
				expected++
			}
		}
	}
	if m.Len() != expected {
		t.Errorf("Expected Len %d, got %d", expected, m.Len())
	}
}

func testFloatKeys(t *testing.T, f Fixture) {
	f.Map.Close()
	if f.Floats == nil {
		t.Skip("no float keyed map")
	}
	m, err := f.Floats()
	if err != nil {
		t.Fatalf("Failed to create float keyed map: %v", err)
	}
	defer m.Close()

	negZero := math.Copysign(0, -1)
	negatives := []float64{math.Inf(-1), -math.MaxFloat64, -1e10, -2.5, -1, -math.SmallestNonzeroFloat64}
	positives := []float64{math.SmallestNonzeroFloat64, 0.5, 1, 3.25, 1e10, math.Inf(1)}
	keys := append(append(slices.Clone(negatives), 0), positives...)
	for _, k := range keys {
		if _, _, err := m.Put(k, fmt.Sprint(k)); err != nil {
			t.Fatalf("Put(%v) failed: %v", k, err)
		}
	}

	// -0 and +0 are the same key
	if value, ok, err := m.Get(negZero); err != nil || !ok || value != "0" {
		t.Errorf("Get(-0) = %q, %v, %v; expected the entry of +0", value, ok, err)
	}
	refPos, _, _ := m.GetRecordReference(0)
	refNeg, ok, err := m.GetRecordReference(negZero)
	if err != nil || !ok || refNeg != refPos {
		t.Errorf("Expected -0 to reference record %d, got %d (ok=%v, err=%v)", refPos, refNeg, ok, err)
	}
	old, replaced, err := m.Put(negZero, "negative zero")
	if err != nil || !replaced || old != "0" {
		t.Errorf("Put(-0) = %q, %v, %v; expected to replace the entry of +0", old, replaced, err)
	}
	if m.Len() != uint64(len(keys)) {
		t.Errorf("Expected Len %d, got %d", len(keys), m.Len())
	}

	// range queries around zero
	checkCount := func(name string, refs *roaring64.Bitmap, err error, expected int) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		if refs.GetCardinality() != uint64(expected) {
			t.Errorf("%s: expected %d refs, got %d", name, expected, refs.GetCardinality())
		}
	}
	refs, err := m.Below(0, false)
	checkCount("Below(0)", refs, err, len(negatives))
	refs, err = m.Below(negZero, true)
	checkCount("Below(-0, inclusive)", refs, err, len(negatives)+1)
	refs, err = m.Above(negZero, false)
	checkCount("Above(-0)", refs, err, len(positives))
	refs, err = m.Above(-1, true)
	checkCount("Above(-1, inclusive)", refs, err, 3+len(positives))

	for _, k := range negatives {
		if value, ok, _ := m.Get(k); !ok || value != fmt.Sprint(k) {
			t.Errorf("Get(%v) = %q, %v", k, value, ok)
		}
	}

	if m.SupportsFeature(db.FeatureOrderedRange) {
		var seen []float64
		if err := m.Range(func(k float64, _ string) bool {
			seen = append(seen, k)
			return true
		}); err != nil {
			t.Fatalf("Range failed: %v", err)
		}
		if !slices.IsSorted(seen) || len(seen) != len(keys) {
			t.Errorf("Range visited %v, expected %d keys in ascending order", seen, len(keys))
		}
	}

	old, removed, err := m.Remove(0)
	if err != nil || !removed || old != "negative zero" {
		t.Errorf("Remove(0) = %q, %v, %v", old, removed, err)
	}
	if ok, _ := m.ContainsKey(negZero); ok {
		t.Errorf("-0 still found after removing +0")
	}
}

func testConcurrentReferences(t *testing.T, m db.IMap[int64, string]) {
	defer m.Close()
	requireFeature(t, m, db.FeatureConcurrent)

	const (
		stable  = 200
		writers = 4
		rounds  = 300
	)
	refs := make([]uint64, stable)
	for k := int64(0); k < stable; k++ {
		mustPut(t, m, k, valueOf(k))
		ref, _, err := m.GetRecordReference(k)
		if err != nil {
			t.Fatalf("GetRecordReference failed: %v", err)
		}
		refs[k] = ref
	}

	// writers churn other keys so freed spans are reused and shard contents
	// change while readers resolve references
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				k := int64(10_000 + w*rounds + i)
				if _, _, err := m.Put(k, valueOf(k)); err != nil {
					return err
				}
				if _, _, err := m.Remove(k); err != nil {
					return err
				}
			}
			return nil
		})
	}

	var readers errgroup.Group
	for r := 0; r < 4; r++ {
		r := r
		readers.Go(func() error {
			for i := 0; i < rounds; i++ {
				k := (i*7 + r) % stable
				value, ok, err := m.GetByReference(refs[k])
				if err != nil {
					return err
				}
				if !ok || value != valueOf(int64(k)) {
					return fmt.Errorf("reference of key %d resolved to %q (ok=%v)", k, value, ok)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("Writers failed: %v", err)
	}
	if err := readers.Wait(); err != nil {
		t.Fatalf("Readers failed: %v", err)
	}
	if m.Len() != stable {
		t.Errorf("Expected Len %d, got %d", stable, m.Len())
	}
}

func testClosed(t *testing.T, m db.IMap[int64, string]) {
	mustPut(t, m, 1, "one")
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, _, err := m.Get(1); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Get, got %v", err)
	}
	if _, _, err := m.Put(2, "two"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Put, got %v", err)
	}
	if err := m.Close(); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from second Close, got %v", err)
	}
}
