// Package store provides the batched command protocol between a cache server and
// its storage engines, together with the pieces every backend variant shares.
//
// The package focuses on:
//   - A tagged command type (Put, Get, Delete, Stat) executed in batches
//   - A unified Backend interface with pluggable engines through the DBFactory pattern
//   - Unified error handling with typed return codes
//
// Key Components:
//
//   - Command / Batch: A Batch holds N commands and N outcome slots. Backends resolve
//     every slot exactly once; entry i's outcome always belongs to command i, even
//     when entries run concurrently. Malformed commands (empty key, unknown kind) are
//     resolved to InvalidOperation errors before any engine sees them.
//
//   - Buffer ownership: A successful Get outcome carries a db.OwnedBuffer. From that
//     point the caller owns it and must release it exactly once, also on error paths
//     (Batch.ReleaseAll). Put never retains the caller's key or value.
//
//   - Runner: The shared executor. It validates, dispatches to the variant, fans out
//     with an errgroup bounded by Config.Parallelism and counts every outcome in the
//     VictoriaMetrics counter hcdkv_commands_total{variant,op,outcome}.
//
//   - Delete: Engines with an atomic delete-with-size primitive use it. All other
//     engines are served by a read followed by a delete (DeleteReturningSize). A Put
//     of the same key racing between the two steps is lost and the reported size is
//     the one of the old value. The store intentionally takes no lock around the pair.
//
//   - Error System: Error{Code, Msg} with codes for backend failures, malformed
//     commands, misses, configuration problems, allocation failures and closed
//     backends. errors.Is matches by code.
//
// Implementations:
//
//	- single:  one engine at Paths[0]
//	- sharded: N engines, key placement by xxhash(key) mod N, shards run concurrently
//	- caching: sharded placement with per-path capacity, split index budget and an
//	  LRU value cache in front of the engines
//
// Stat commands are keyless single-entry batches. They read the engines' counters
// and never wait for in-flight writes, so the values are approximate.
package store
