// Package caching implements the caching backend of the store package: sharded
// placement over the configured paths plus an in-process LRU of values.
//
// Memory budgets:
//
//   - StorageSizes[i] becomes the capacity of the engine at Paths[i]. A Put that
//     would grow an engine beyond it fails with a backend error.
//   - IndexMemoryBudget is split evenly into the block caches of the engines.
//   - DataCacheMemoryBudget bounds the LRU (keys plus values). Zero disables it.
//
// Cache consistency:
//
//	A Get miss reads the engine and admits the value while holding the key's stripe
//	lock. Put and Delete hold the same lock while writing the engine and invalidating
//	the cache entry. A cached value is therefore never older than the engine's value.
//	Because Delete runs under the stripe lock, the read-then-delete fallback of
//	engines without atomic delete cannot race with a Put issued through this store.
//
// Cache hits are handed out as heap copies (db.CopyBuffer).
package caching
