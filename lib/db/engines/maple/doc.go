// Package maple implements an in-memory key-value engine (db.KVDB) built on
// sharded concurrent maps. It is the reference engine of the module: it needs no
// disk, it is fast enough to back unit tests and it is the only engine with a
// native atomic delete-with-size primitive (FeatureAtomicDelete).
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. Keys are spread
//     over a fixed number of shards (one per CPU by default). Each shard is an
//     xsync.MapOf, which itself shards keys internally and performs lock-free reads.
//
//   - Values: Put stores a private copy of the value and Get returns another copy
//     wrapped in a heap-backed db.OwnedBuffer. The engine therefore never retains a
//     caller's slice and the buffer's release hook is nil.
//
//   - Atomic delete: DeleteReturningSize uses LoadAndDelete, so the returned size is
//     always the size of the value that was actually removed. Store variants detect
//     this through SupportsFeature and skip their read-then-delete fallback.
//
//   - Counters: Record count and data size are maintained exactly for every write
//     (the previous size is known inside Compute). MemoryBytes adds a fixed per-entry
//     overhead to key and value bytes.
//
// Persistence:
//
//	If Options.Path is set, Close writes a snapshot file (maple.snapshot) into the
//	directory and New loads it again. The snapshot is written to a temporary file and
//	renamed, so an interrupted Close leaves the previous snapshot intact. There is no
//	log: everything written since the last clean Close is lost on a crash.
//
//	Snapshot format (little endian):
//	  8 bytes magic "MAPLEDB\x00", 1 byte version,
//	  repeated { 1 byte marker=1, u32 key length, key, u32 value length, value },
//	  1 byte marker=0
//
// Thread Safety:
//
//	All KVDB methods are safe for concurrent use. Close must not race with other calls.
package maple
