package sharded

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/store"
	storetesting "github.com/ValentinKolb/hcdkv/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config(t *testing.T, engine db.Implementation, paths, shards int) store.Config {
	cfg := store.Config{
		Variant:         store.VariantSharded,
		Engine:          engine,
		NumShards:       shards,
		BlockCacheBytes: 1 << 20,
		DisableWAL:      true,
	}
	for i := 0; i < paths; i++ {
		cfg.Paths = append(cfg.Paths, t.TempDir())
	}
	return cfg
}

func open(engine db.Implementation, paths, shards int) storetesting.BackendFactory {
	return func(t *testing.T) store.Backend {
		factory, err := store.FactoryFor(engine)
		require.NoError(t, err)
		backend, err := Open(config(t, engine, paths, shards), factory)
		require.NoError(t, err)
		return backend
	}
}

func TestSharded(t *testing.T) {
	storetesting.RunBackendTests(t, "maple(memory)", open(db.ImplMaple, 0, 4))
	storetesting.RunBackendTests(t, "pebble(3 paths)", open(db.ImplPebble, 3, 0))
	storetesting.RunBackendTests(t, "pebble(2 paths, 4 shards)", open(db.ImplPebble, 2, 4))
	storetesting.RunBackendTests(t, "leveldb(2 paths)", open(db.ImplLevelDB, 2, 0))
}

func TestPlacementIsDeterministic(t *testing.T) {
	cfg := config(t, db.ImplPebble, 3, 0)
	factory, err := store.FactoryFor(cfg.Engine)
	require.NoError(t, err)

	backend, err := Open(cfg, factory)
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		require.NoError(t, store.PutOne(backend, key, []byte("v")))
	}

	// every shard got keys and each key sits in the shard the hash selects
	infos := backend.Info()
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.NotZero(t, info.Records, "shard %s got no keys", info.Path)
	}
	require.NoError(t, backend.Close())

	for i := 0; i < 300; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		want := util.ShardIndex(key, 3)

		engine, err := factory(cfg.EngineOptions(want))
		require.NoError(t, err)
		ok, err := engine.Has(key)
		require.NoError(t, err)
		assert.True(t, ok, "key %s not in shard %d", key, want)
		require.NoError(t, engine.Close())
	}

	// reopening with the same path order finds every key again
	backend, err = Open(cfg, factory)
	require.NoError(t, err)
	defer backend.Close()
	for i := 0; i < 300; i++ {
		_, err := store.GetOne(backend, []byte(fmt.Sprintf("key-%d", i)))
		assert.NoError(t, err)
	}
}

func TestShardSubdirectories(t *testing.T) {
	cfg := config(t, db.ImplLevelDB, 2, 4)
	factory, err := store.FactoryFor(cfg.Engine)
	require.NoError(t, err)

	backend, err := Open(cfg, factory)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	for i := 0; i < 4; i++ {
		_, err := os.Stat(filepath.Join(cfg.Paths[i%2], fmt.Sprintf("shard-%d", i)))
		assert.NoError(t, err, "shard %d root missing", i)
	}
}

func TestFailedOpenClosesShards(t *testing.T) {
	cfg := config(t, db.ImplMaple, 3, 0)

	var opened []db.KVDB
	factory := func(opts db.Options) (db.KVDB, error) {
		if len(opened) == 2 {
			return nil, errors.New("third shard broken")
		}
		engine, err := store.FactoryFor(db.ImplMaple)
		if err != nil {
			return nil, err
		}
		kv, err := engine(opts)
		if err == nil {
			opened = append(opened, kv)
		}
		return kv, err
	}

	_, err := Open(cfg, factory)
	require.Error(t, err)
	require.Len(t, opened, 2)
	for _, engine := range opened {
		assert.ErrorIs(t, engine.Close(), db.ErrClosed, "shard was left open")
	}
}

func TestGroup(t *testing.T) {
	batch := store.NewBatch(
		store.Get{Key: []byte("a")},
		store.Stat{Kind: store.StatDataSize},
		store.Get{Key: []byte("b")},
		store.Put{Key: nil},
	)
	perShard, keyless := Group(batch, 2)
	assert.Equal(t, []int{1, 3}, keyless)

	total := 0
	for _, entries := range perShard {
		total += len(entries)
	}
	assert.Equal(t, 2, total)
}
