package single

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	db     db.KVDB
	runner store.Runner
	closed atomic.Bool
}

// Open opens a single engine at cfg.Paths[0] (or in memory for maple without
// a path). cfg.Variant must be store.VariantSingle.
func Open(cfg store.Config, factory store.DBFactory) (store.Backend, error) {
	if cfg.Variant != store.VariantSingle {
		return nil, store.NewError(store.RetCConfigError, fmt.Sprintf("single: unexpected variant %q", cfg.Variant))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := factory(cfg.EngineOptions(0))
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("open engine %q: %v", cfg.ShardRoot(0), err))
	}

	log.Infof("opened single store (engine=%s, path=%q)", cfg.Engine, cfg.ShardRoot(0))
	return &storeImpl{
		db:     engine,
		runner: store.Runner{Variant: store.VariantSingle, Parallelism: cfg.Parallelism},
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

func (s *storeImpl) exec(cmd store.Command) store.Outcome {
	if stat, ok := cmd.(store.Stat); ok {
		return store.Count(store.StatOf(stat.Kind, s.Info()))
	}
	return store.ExecOnEngine(s.db, cmd)
}

func (s *storeImpl) Info() []db.DatabaseInfo {
	return []db.DatabaseInfo{s.db.GetInfo()}
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return store.ErrClosed
	}
	if err := s.db.Close(); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("close engine: %v", err))
	}
	log.Infof("closed single store")
	return nil
}
