package caching

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/ValentinKolb/hcdkv/lib/store/sharded"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

const lockStripes = 1024

type storeImpl struct {
	shards []db.KVDB
	cache  *dataCache
	locks  *util.StripedLocks
	runner store.Runner
	closed atomic.Bool
}

// Open opens one engine per path. Every engine gets its StorageSizes entry as
// capacity and an equal share of IndexMemoryBudget as block cache. Values read
// from the engines are kept in an LRU bounded by DataCacheMemoryBudget.
func Open(cfg store.Config, factory store.DBFactory) (store.Backend, error) {
	if cfg.Variant != store.VariantCaching {
		return nil, store.NewError(store.RetCConfigError, fmt.Sprintf("caching: unexpected variant %q", cfg.Variant))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache, err := newDataCache(cfg.DataCacheMemoryBudget)
	if err != nil {
		return nil, store.NewError(store.RetCConfigError, fmt.Sprintf("data cache: %v", err))
	}

	shards, err := sharded.OpenShards(cfg, factory)
	if err != nil {
		return nil, err
	}

	log.Infof("opened caching store (engine=%s, shards=%d, data cache=%s)",
		cfg.Engine, len(shards), util.FormatBytes(cfg.DataCacheMemoryBudget))
	return &storeImpl{
		shards: shards,
		cache:  cache,
		locks:  util.NewStripedLocks(lockStripes),
		runner: store.Runner{Variant: store.VariantCaching, Parallelism: cfg.Parallelism},
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ExecuteBatch(batch *store.Batch) {
	if s.closed.Load() {
		s.runner.FailAll(batch, store.ErrClosed)
		return
	}
	s.runner.Run(batch, s.exec)
}

func (s *storeImpl) shardFor(key []byte) db.KVDB {
	return s.shards[util.ShardIndex(key, len(s.shards))]
}

func (s *storeImpl) exec(cmd store.Command) store.Outcome {
	switch c := cmd.(type) {
	case store.Get:
		return s.get(c)

	case store.Put, store.Delete:
		key := store.KeyOf(c)
		unlock := s.locks.Lock(key)
		defer unlock()

		out := store.ExecOnEngine(s.shardFor(key), c)
		// also on failure: the engine may or may not have applied the write
		s.cache.invalidate(key)
		return out

	case store.Stat:
		n := store.StatOf(c.Kind, s.Info())
		if c.Kind == store.StatMemoryUsage {
			n += s.cache.size()
		}
		return store.Count(n)

	default:
		return store.Failed(store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown command type %T", cmd)))
	}
}

// get serves hits from the data cache. A miss reads the engine under the key's
// stripe lock and admits the value, so an admission can never overtake a Put or
// Delete of the same key.
func (s *storeImpl) get(c store.Get) store.Outcome {
	if value, ok := s.cache.get(c.Key); ok {
		return store.Found(db.CopyBuffer(value))
	}

	unlock := s.locks.Lock(c.Key)
	defer unlock()

	out := store.ExecOnEngine(s.shardFor(c.Key), c)
	if out.Status == store.StatusSuccess {
		s.cache.admit(c.Key, out.Value.Bytes())
	}
	return out
}

func (s *storeImpl) Info() []db.DatabaseInfo {
	infos := make([]db.DatabaseInfo, len(s.shards))
	for i, shard := range s.shards {
		infos[i] = shard.GetInfo()
	}
	return infos
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return store.ErrClosed
	}

	if err := sharded.CloseShards(s.shards); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("close shards: %v", err))
	}

	log.Infof("closed caching store (%d shards, %d cached values dropped)", len(s.shards), s.cache.len())
	return nil
}
