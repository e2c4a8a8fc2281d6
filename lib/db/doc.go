// Package db provides the storage engine contract used by every store variant.
// It defines the KVDB interface that an on-disk (or in-memory) engine must satisfy
// to hold one shard of a store, plus the types that cross the engine boundary.
//
// The package focuses on:
//   - A narrow, uniform interface for key-value operations
//   - Feature discovery through capability flags
//   - Explicit ownership of value buffers returned by engines
//   - Approximate, non-blocking statistics
//
// Key Components:
//
//   - KVDB Interface: The core interface all engines implement. It provides Put, Get,
//     Has, Delete and, for engines with a native primitive, DeleteReturningSize.
//     Engines must be safe for concurrent use. The store layers add no locking of
//     their own on top of it.
//
//   - OwnedBuffer: The result type of Get. The engine allocates it, the caller owns it
//     after Get returns and must call Release exactly once. Engines that return pinned
//     memory (pebble) hook their closer into Release; heap-backed engines pass nil.
//     Release is idempotent so that error paths can release unconditionally.
//
//   - Feature Flags: Engines advertise optional operations through SupportsFeature.
//     FeatureAtomicDelete signals that DeleteReturningSize is available and that the
//     read-then-delete fallback (and its race) is not needed.
//
//   - Options: Engine tuning (durability, parallelism, block cache budget, capacity).
//     Options are fixed when the engine is opened and never change afterwards.
//
//   - DatabaseInfo: Record count, logical data size and memory usage. All values are
//     estimates when writes are in flight.
//
// Related Packages:
//
// The engines/pebble, engines/leveldb and engines/maple packages contain the engine
// implementations. The testing package provides a conformance suite (RunKVDBTests) and
// benchmarks (RunKVDBBenchmarks) every engine runs. The util package contains the
// deterministic key hashing used for shard placement and the statistics sidecar codec.
package db
