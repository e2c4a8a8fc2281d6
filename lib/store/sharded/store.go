package sharded

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	shards []db.KVDB
	runner store.Runner
	closed atomic.Bool
}

// Open opens cfg.Shards() engines, see store.Config.ShardRoot for their roots.
// If one engine fails to open, the engines opened so far are closed again.
func Open(cfg store.Config, factory store.DBFactory) (store.Backend, error) {
	if cfg.Variant != store.VariantSharded {
		return nil, store.NewError(store.RetCConfigError, fmt.Sprintf("sharded: unexpected variant %q", cfg.Variant))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shards, err := OpenShards(cfg, factory)
	if err != nil {
		return nil, err
	}

	log.Infof("opened sharded store (engine=%s, shards=%d, paths=%d)", cfg.Engine, len(shards), len(cfg.Paths))
	return &storeImpl{
		shards: shards,
		runner: store.Runner{Variant: store.VariantSharded, Parallelism: cfg.Parallelism},
	}, nil
}

// OpenShards opens one engine per shard of cfg. On error every engine opened
// so far is closed.
func OpenShards(cfg store.Config, factory store.DBFactory) ([]db.KVDB, error) {
	n := cfg.Shards()
	shards := make([]db.KVDB, 0, n)
	for i := 0; i < n; i++ {
		engine, err := factory(cfg.EngineOptions(i))
		if err != nil {
			if cerr := CloseShards(shards); cerr != nil {
				log.Errorf("failed to close shards after open error: %v", cerr)
			}
			return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("open shard %d at %q: %v", i, cfg.ShardRoot(i), err))
		}
		shards = append(shards, engine)
	}
	return shards, nil
}

// CloseShards closes all engines and joins their errors.
func CloseShards(shards []db.KVDB) error {
	var errs []error
	for i, shard := range shards {
		if err := shard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Group splits the entries of a batch by shard. Entries without a key (stat or
// malformed commands) are returned separately.
func Group(batch *store.Batch, numShards int) (perShard [][]int, keyless []int) {
	perShard = make([][]int, numShards)
	for i := 0; i < batch.Len(); i++ {
		key := store.KeyOf(batch.Command(i))
		if len(key) == 0 {
			keyless = append(keyless, i)
			continue
		}
		s := util.ShardIndex(key, numShards)
		perShard[s] = append(perShard[s], i)
	}
	return perShard, keyless
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

// ExecuteBatch runs the entries of every shard sequentially and the shards
// concurrently.
func (s *storeImpl) ExecuteBatch(batch *store.Batch) {
	if s.closed.Load() {
		s.runner.FailAll(batch, store.ErrClosed)
		return
	}

	perShard, keyless := Group(batch, len(s.shards))
	for _, i := range keyless {
		s.runner.Do(batch, i, s.stat)
	}

	limit := s.runner.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for shardIdx, entries := range perShard {
		if len(entries) == 0 {
			continue
		}
		engine := s.shards[shardIdx]
		entries := entries
		g.Go(func() error {
			exec := func(cmd store.Command) store.Outcome {
				return store.ExecOnEngine(engine, cmd)
			}
			for _, i := range entries {
				s.runner.Do(batch, i, exec)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *storeImpl) stat(cmd store.Command) store.Outcome {
	stat, ok := cmd.(store.Stat)
	if !ok {
		return store.Failed(store.NewError(store.RetCInvalidOperation, fmt.Sprintf("%s without key", cmd.Op())))
	}
	return store.Count(store.StatOf(stat.Kind, s.Info()))
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
	if err := CloseShards(s.shards); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("close shards: %v", err))
	}
	log.Infof("closed sharded store (%d shards)", len(s.shards))
	return nil
}
