// Package pebble implements db.KVDB on top of the cockroachdb pebble LSM tree.
//
// Key Components:
//
//   - pebbleImpl: Owns the pebble.DB and its block cache. Get returns the value
//     without a copy, the pebble closer becomes the release hook of the returned
//     db.OwnedBuffer. Until the buffer is released the block stays pinned.
//
//   - Counters: Pebble keeps no record count, so Put and Delete probe the old
//     value under a striped key lock before writing. The counters are written to
//     the HCDKV-STATS sidecar file on Close and removed again on open. After an
//     unclean shutdown they restart at zero.
//
//   - Tuning: a bloom filter on every level, compression off unless requested
//     (cached values are usually already compressed) and the block cache sized by
//     Options.BlockCacheBytes.
//
// Durability:
//
//	With Options.DisableWAL writes only reach disk when a memtable is flushed.
//	Close flushes explicitly, a crash loses the unflushed tail. This mode is meant
//	for cache deployments only.
//
// Thread Safety:
//
//	All KVDB methods are safe for concurrent use. Close must not race with other
//	calls and every buffer returned by Get must be released before Close.
package pebble
