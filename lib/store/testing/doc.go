// Package testing provides a standardized conformance suite for store.IStore
// implementations. Every backend (fstore, mstore, estore) runs the same suite, so
// allocation, reclamation and persistence behave identically across media.
//
// Example usage:
//
//	newFactory := func(t *testing.T) storetesting.StoreFactory {
//		path := filepath.Join(t.TempDir(), "heap.db")
//		return func() (store.IStore, error) {
//			return fstore.Open(path, nil)
//		}
//	}
//
//	storetesting.RunStoreTests(t, "fstore", newFactory, true)
package testing
