// Package kv is the item level client of the storage backend: the part of the
// cache server that turns keys into items and back.
//
// MultiGet executes one batch of GET commands and copies every hit into an item
// obtained from the server's Allocator. The backend buffer of a hit is released
// exactly once, whether the copy succeeded or the allocator had no room. An
// allocation failure turns the hit into a miss; it is logged and counted in
// hcdkv_item_allocation_failures_total.
//
// Two Open forms mirror the server's configuration styles:
//
//	kv.OpenSharded("/ssd1,/ssd2", 8, 256)                      // sharded, comma separated paths
//	kv.OpenCaching(paths, sizes, 64<<20, 256<<20)              // caching, per-path capacity
//
// Both disable the WAL: after a crash the server treats the store as a cold cache.
// Open takes a full store.Config for everything else.
package kv
