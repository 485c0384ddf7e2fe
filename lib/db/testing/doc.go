// Package testing provides standardised tests and benchmarks for map
// implementations that satisfy the db.IMap interface.
//
// The package contains:
//   - map_testing: a conformance suite covering point operations, stable record
//     references, range queries against a sorted reference, persistence across
//     reopen and concurrent writers
//   - map_benchmarks: throughput benchmarks for the common operations
//
// Example usage:
//
//	factory := func(t testing.TB) dbtesting.Fixture {
//		st, _ := estore.Open(nil)
//		m, _ := skiplist.New(st, serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
//		return dbtesting.Fixture{Map: m, Reopen: func(pos store.Position) (db.IMap[int64, string], error) {
//			return skiplist.Open(st, pos, serializer.Int64Keys(), serializer.NewStringSerializer(), nil)
//		}}
//	}
//
//	dbtesting.RunMapTests(t, "skiplist", factory)
//	dbtesting.RunMapBenchmarks(b, "skiplist", factory)
package testing
