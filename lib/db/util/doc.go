// Package util provides helpers shared by the engines and store variants.
//
// The package contains:
//   - functions: Deterministic key hashing and shard placement, size and path-list parsing
//   - counters: Lock-free record/byte counters every engine uses for its statistics
//   - sidecar: A small binary codec that persists those counters next to an engine's data
//   - statistics: Summary statistics used to report the key distribution across shards
//
// Shard placement (ShardIndex) is a pure function of the key bytes and the shard count.
// It uses an unseeded xxhash so that a store reopened with the same shard roots in the
// same order finds every key in the shard it was written to.
package util
