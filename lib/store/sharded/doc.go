// Package sharded implements the sharded backend of the store package.
//
// Keys are placed by xxhash64(key) mod N. The hash is unseeded, so the placement
// is identical across restarts and processes as long as N and the ordered path
// list stay the same. Changing either strands existing keys in the wrong shard.
//
// A batch is split into one group per shard. Groups run concurrently (bounded by
// Config.Parallelism), the entries of one group run in batch order. Stat entries
// are answered from the sum of all shard counters.
//
// Shard roots:
//
//	N == len(Paths):  shard i -> Paths[i]
//	N  > len(Paths):  shard i -> Paths[i mod len(Paths)]/shard-<i>
package sharded
