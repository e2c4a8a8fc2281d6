// Package single implements the single-engine backend of the store package. It is
// a thin wrapper around one db.KVDB: keyed commands go straight to the engine,
// stat commands read the engine's counters.
//
// Thread Safety:
//
//	ExecuteBatch may be called from many goroutines. The store adds no locking of
//	its own and relies on the engine's thread safety. Entries of one batch run
//	concurrently (bounded by Config.Parallelism), so two commands for the same key
//	in one batch have no defined order.
//
// Usage Example:
//
//	cfg := store.DefaultConfig("/var/lib/hcdkv")
//	factory, _ := store.FactoryFor(cfg.Engine)
//	backend, err := single.Open(cfg, factory)
//
//	batch := store.NewBatch(store.Put{Key: k, Value: v}, store.Get{Key: k})
//	backend.ExecuteBatch(batch)
//	if res := batch.Result(1); res.Status == store.StatusSuccess {
//		defer res.Value.Release()
//	}
package single
