package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/maple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		valid bool
	}{
		{"put", Put{Key: []byte("k"), Value: []byte("v")}, true},
		{"put empty value", Put{Key: []byte("k")}, true},
		{"get", Get{Key: []byte("k")}, true},
		{"delete", Delete{Key: []byte("k")}, true},
		{"stat", Stat{Kind: StatMemoryUsage}, true},
		{"put empty key", Put{Value: []byte("v")}, false},
		{"get empty key", Get{Key: []byte{}}, false},
		{"delete empty key", Delete{}, false},
		{"unknown stat", Stat{Kind: StatMemoryUsage + 1}, false},
		{"nil", nil, false},
		{"pointer command", &Put{Key: []byte("k")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cmd)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, NewError(RetCInvalidOperation, "")), "got %v", err)
			}
		})
	}
}

func TestBatchResolve(t *testing.T) {
	batch := NewBatch(Get{Key: []byte("a")}, Stat{Kind: StatRecordCount})
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, StatusPending, batch.Result(0).Status)
	assert.False(t, batch.Done())

	batch.Resolve(1, Count(7))
	assert.Equal(t, uint64(7), batch.Result(1).N)
	assert.False(t, batch.Done())

	assert.Panics(t, func() { batch.Resolve(1, Count(8)) }, "second resolution must panic")
	assert.Panics(t, func() { batch.Resolve(0, Outcome{}) }, "pending is not a resolution")

	batch.Resolve(0, NotFound())
	assert.True(t, batch.Done())
	assert.Equal(t, uint64(7), batch.Result(1).N, "first resolution wins")
}

func TestBatchReleaseAll(t *testing.T) {
	released := 0
	buf := db.NewOwnedBuffer([]byte("v"), func() { released++ })

	batch := NewBatch(Get{Key: []byte("a")}, Get{Key: []byte("b")})
	batch.Resolve(0, Found(buf))

	batch.ReleaseAll()
	batch.ReleaseAll()
	assert.Equal(t, 1, released)
	assert.True(t, buf.Released())
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(RetCNotFound, "key x"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrClosed))
	assert.Equal(t, RetCNotFound, CodeOf(err))
	assert.Equal(t, RetCInternalError, CodeOf(errors.New("foreign")))
	assert.Equal(t, RetCSuccess, CodeOf(nil))
	assert.Contains(t, ErrConfig.Error(), "ConfigError")
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{Variant: VariantSharded, Engine: db.ImplPebble, Paths: []string{"/a", "/b"}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"more shards than paths", func(c *Config) { c.NumShards = 8 }, true},
		{"fewer shards than paths", func(c *Config) { c.NumShards = 1 }, false},
		{"unknown engine", func(c *Config) { c.Engine = "rocks" }, false},
		{"unknown variant", func(c *Config) { c.Variant = "raid" }, false},
		{"no paths", func(c *Config) { c.Paths = nil }, false},
		{"no paths maple", func(c *Config) { c.Paths = nil; c.Engine = db.ImplMaple }, true},
		{"duplicate path", func(c *Config) { c.Paths = []string{"/a", "/a/"} }, false},
		{"empty path", func(c *Config) { c.Paths = []string{"/a", " "} }, false},
		{"single with two paths", func(c *Config) { c.Variant = VariantSingle }, false},
		{"caching sizes mismatch", func(c *Config) { c.Variant = VariantCaching; c.StorageSizes = []uint64{1} }, false},
		{"caching sizes", func(c *Config) { c.Variant = VariantCaching; c.StorageSizes = []uint64{1, 2} }, true},
		{"sync without wal", func(c *Config) { c.Sync = true; c.DisableWAL = true }, false},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestShardRoots(t *testing.T) {
	cfg := Config{Variant: VariantSharded, Engine: db.ImplPebble, Paths: []string{"/a", "/b"}}
	assert.Equal(t, 2, cfg.Shards())
	assert.Equal(t, "/a", cfg.ShardRoot(0))
	assert.Equal(t, "/b", cfg.ShardRoot(1))

	cfg.NumShards = 4
	assert.Equal(t, filepath.Join("/a", "shard-0"), cfg.ShardRoot(0))
	assert.Equal(t, filepath.Join("/b", "shard-1"), cfg.ShardRoot(1))
	assert.Equal(t, filepath.Join("/a", "shard-2"), cfg.ShardRoot(2))
	assert.Equal(t, filepath.Join("/b", "shard-3"), cfg.ShardRoot(3))

	caching := Config{
		Variant:           VariantCaching,
		Engine:            db.ImplPebble,
		Paths:             []string{"/a", "/b"},
		StorageSizes:      []uint64{100, 200},
		IndexMemoryBudget: 64 << 20,
	}
	opts := caching.EngineOptions(1)
	assert.Equal(t, "/b", opts.Path)
	assert.Equal(t, uint64(200), opts.CapacityBytes)
	assert.Equal(t, uint64(32<<20), opts.BlockCacheBytes)

	assert.Contains(t, caching.String(), "Data Cache Budget")
}

func TestDeleteReturningSizeFallback(t *testing.T) {
	engines := map[string]db.KVDB{}

	atomicEngine, err := maple.New(db.Options{})
	require.NoError(t, err)
	engines["atomic"] = atomicEngine

	fallbackEngine, err := leveldb.New(db.DefaultOptions(t.TempDir()))
	require.NoError(t, err)
	engines["fallback"] = fallbackEngine

	for name, engine := range engines {
		t.Run(name, func(t *testing.T) {
			defer engine.Close()

			require.NoError(t, engine.Put([]byte("k"), []byte("12345")))

			size, err := DeleteReturningSize(engine, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, 5, size)

			_, err = DeleteReturningSize(engine, []byte("k"))
			assert.ErrorIs(t, err, db.ErrNotFound)

			ok, err := engine.Has([]byte("k"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestExecOnEngine(t *testing.T) {
	engine, err := maple.New(db.Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, ExecOnEngine(engine, Put{Key: []byte("k"), Value: []byte("v")}).Status)

	out := ExecOnEngine(engine, Get{Key: []byte("k")})
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []byte("v"), out.Value.Bytes())
	out.Value.Release()

	assert.Equal(t, StatusNotFound, ExecOnEngine(engine, Get{Key: []byte("missing")}).Status)
	assert.Equal(t, StatusError, ExecOnEngine(engine, Stat{}).Status)

	require.NoError(t, engine.Close())
	out = ExecOnEngine(engine, Put{Key: []byte("k"), Value: []byte("v")})
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, ErrClosed)
}

func TestRunnerResolvesEveryEntry(t *testing.T) {
	cmds := make([]Command, 0, 100)
	for i := 0; i < 99; i++ {
		cmds = append(cmds, Get{Key: []byte(fmt.Sprintf("key-%d", i))})
	}
	cmds = append(cmds, Get{})

	batch := NewBatch(cmds...)
	Runner{Variant: "test", Parallelism: 8}.Run(batch, func(cmd Command) Outcome {
		// echo the key length so every outcome can be matched to its command
		return Count(uint64(len(cmd.(Get).Key)))
	})

	require.True(t, batch.Done())
	for i := 0; i < 99; i++ {
		assert.Equal(t, uint64(len(fmt.Sprintf("key-%d", i))), batch.Result(i).N, "entry %d", i)
	}
	assert.Equal(t, StatusError, batch.Result(99).Status, "empty key must not reach the backend")
}
