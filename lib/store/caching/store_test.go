package caching

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/store"
	storetesting "github.com/ValentinKolb/hcdkv/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config(t *testing.T, engine db.Implementation, paths int, dataCache uint64) store.Config {
	cfg := store.Config{
		Variant:               store.VariantCaching,
		Engine:                engine,
		IndexMemoryBudget:     4 << 20,
		DataCacheMemoryBudget: dataCache,
		DisableWAL:            true,
	}
	for i := 0; i < paths; i++ {
		cfg.Paths = append(cfg.Paths, t.TempDir())
		cfg.StorageSizes = append(cfg.StorageSizes, 64<<20)
	}
	return cfg
}

func open(engine db.Implementation, paths int, dataCache uint64) storetesting.BackendFactory {
	return func(t *testing.T) store.Backend {
		factory, err := store.FactoryFor(engine)
		require.NoError(t, err)
		backend, err := Open(config(t, engine, paths, dataCache), factory)
		require.NoError(t, err)
		return backend
	}
}

func TestCaching(t *testing.T) {
	storetesting.RunBackendTests(t, "pebble", open(db.ImplPebble, 2, 1<<20))
	storetesting.RunBackendTests(t, "pebble(no data cache)", open(db.ImplPebble, 2, 0))
	storetesting.RunBackendTests(t, "leveldb", open(db.ImplLevelDB, 3, 1<<20))
	storetesting.RunBackendTests(t, "maple", open(db.ImplMaple, 1, 64<<10))
}

func TestCacheNeverStale(t *testing.T) {
	backend := open(db.ImplPebble, 2, 1<<20)(t)
	defer backend.Close()

	key := []byte("foo")
	require.NoError(t, store.PutOne(backend, key, []byte("v1")))

	// miss admits, second read is a hit
	for i := 0; i < 2; i++ {
		buf, err := store.GetOne(backend, key)
		require.NoError(t, err)
		assert.Equal(t, "v1", string(buf.Bytes()))
		buf.Release()
	}

	require.NoError(t, store.PutOne(backend, key, []byte("v2")))
	buf, err := store.GetOne(backend, key)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(buf.Bytes()))
	buf.Release()

	_, err = store.DeleteOne(backend, key)
	require.NoError(t, err)
	_, err = store.GetOne(backend, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCacheHitIsACopy(t *testing.T) {
	backend := open(db.ImplMaple, 1, 1<<20)(t)
	defer backend.Close()

	require.NoError(t, store.PutOne(backend, []byte("k"), []byte("value")))

	first, err := store.GetOne(backend, []byte("k"))
	require.NoError(t, err)
	first.Release()

	hit, err := store.GetOne(backend, []byte("k"))
	require.NoError(t, err)
	hit.Bytes()[0] = 'X'
	hit.Release()

	again, err := store.GetOne(backend, []byte("k"))
	require.NoError(t, err)
	defer again.Release()
	assert.Equal(t, "value", string(again.Bytes()))
}

func TestCapacityPerPath(t *testing.T) {
	cfg := config(t, db.ImplMaple, 1, 0)
	cfg.StorageSizes = []uint64{1000}
	factory, err := store.FactoryFor(cfg.Engine)
	require.NoError(t, err)

	backend, err := Open(cfg, factory)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, store.PutOne(backend, []byte("a"), bytes.Repeat([]byte("x"), 900)))
	err = store.PutOne(backend, []byte("b"), bytes.Repeat([]byte("x"), 200))
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))
}

func TestMemoryUsageIncludesCache(t *testing.T) {
	backend := open(db.ImplMaple, 1, 1<<20)(t)
	defer backend.Close()

	value := bytes.Repeat([]byte("x"), 1000)
	require.NoError(t, store.PutOne(backend, []byte("k"), value))
	before, err := store.StatOne(backend, store.StatMemoryUsage)
	require.NoError(t, err)

	buf, err := store.GetOne(backend, []byte("k"))
	require.NoError(t, err)
	buf.Release()

	after, err := store.StatOne(backend, store.StatMemoryUsage)
	require.NoError(t, err)
	assert.Equal(t, before+uint64(len("k")+len(value)), after)
}

func TestDataCacheEviction(t *testing.T) {
	cache, err := newDataCache(800)
	require.NoError(t, err)

	// entries above budget/8 are never admitted
	cache.admit([]byte("big"), make([]byte, 200))
	_, ok := cache.get([]byte("big"))
	assert.False(t, ok)

	for i := 0; i < 20; i++ {
		cache.admit([]byte(fmt.Sprintf("k%02d", i)), make([]byte, 97))
	}
	assert.LessOrEqual(t, cache.size(), uint64(800))
	assert.Equal(t, 8, cache.len())

	_, ok = cache.get([]byte("k00"))
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = cache.get([]byte("k19"))
	assert.True(t, ok)

	// re-admitting a key replaces its size instead of adding to it
	cache.admit([]byte("k19"), make([]byte, 10))
	assert.Equal(t, uint64(7*100+13), cache.size())

	cache.invalidate([]byte("k19"))
	assert.Equal(t, uint64(700), cache.size())

	var disabled *dataCache
	disabled.admit([]byte("k"), []byte("v"))
	_, ok = disabled.get([]byte("k"))
	assert.False(t, ok)
	assert.Zero(t, disabled.size())
}
