package single

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/store"
	storetesting "github.com/ValentinKolb/hcdkv/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(engine db.Implementation, inMemory bool) storetesting.BackendFactory {
	return func(t *testing.T) store.Backend {
		cfg := store.DefaultConfig(t.TempDir())
		cfg.Engine = engine
		if inMemory {
			cfg.Paths = nil
		}
		factory, err := store.FactoryFor(engine)
		require.NoError(t, err)

		backend, err := Open(cfg, factory)
		require.NoError(t, err)
		return backend
	}
}

func TestSingle(t *testing.T) {
	storetesting.RunBackendTests(t, "maple(memory)", open(db.ImplMaple, true))
	storetesting.RunBackendTests(t, "maple", open(db.ImplMaple, false))
	storetesting.RunBackendTests(t, "pebble", open(db.ImplPebble, false))
	storetesting.RunBackendTests(t, "leveldb", open(db.ImplLevelDB, false))
}

func TestOpenErrors(t *testing.T) {
	factory, err := store.FactoryFor(db.ImplPebble)
	require.NoError(t, err)

	cfg := store.DefaultConfig(t.TempDir())
	cfg.Variant = store.VariantSharded
	_, err = Open(cfg, factory)
	assert.ErrorIs(t, err, store.ErrConfig)

	cfg = store.DefaultConfig(t.TempDir())
	cfg.Paths = append(cfg.Paths, t.TempDir())
	_, err = Open(cfg, factory)
	assert.ErrorIs(t, err, store.ErrConfig)

	failing := func(opts db.Options) (db.KVDB, error) {
		return nil, errors.New("disk on fire")
	}
	_, err = Open(store.DefaultConfig(t.TempDir()), failing)
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))
}

func TestReopenKeepsData(t *testing.T) {
	cfg := store.DefaultConfig(t.TempDir())
	factory, err := store.FactoryFor(cfg.Engine)
	require.NoError(t, err)

	backend, err := Open(cfg, factory)
	require.NoError(t, err)
	require.NoError(t, store.PutOne(backend, []byte("foo"), []byte("bar")))
	require.NoError(t, backend.Close())

	backend, err = Open(cfg, factory)
	require.NoError(t, err)
	defer backend.Close()

	buf, err := store.GetOne(backend, []byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, "bar", string(buf.Bytes()))
	buf.Release()

	records, err := store.StatOne(backend, store.StatRecordCount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), records)
}
