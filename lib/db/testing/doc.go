// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the KVDB contract (copy semantics, buffer
//     release, counters, reopen, closed engine)
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// Tests that need a feature the engine does not advertise are skipped.
//
// Example usage:
//
//	factory := func(opts db.Options) (db.KVDB, error) {
//		return myengine.New(opts)
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyEngine", factory)
package testing
