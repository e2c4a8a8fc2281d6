package maple

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	dbtesting "github.com/ValentinKolb/hcdkv/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func(opts db.Options) (db.KVDB, error) {
		return New(opts)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func(opts db.Options) (db.KVDB, error) {
		return New(opts)
	})
}

func TestInMemoryOnly(t *testing.T) {
	database, err := New(db.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if database.SupportsFeature(db.FeaturePersistence) {
		t.Errorf("maple without path must not advertise persistence")
	}
	if !database.SupportsFeature(db.FeatureAtomicDelete | db.FeatureGet) {
		t.Errorf("maple must support atomic delete")
	}

	if err := database.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := database.Close(); err != db.ErrClosed {
		t.Errorf("second Close should return ErrClosed, got %v", err)
	}
	if _, err := database.Get([]byte("k")); err != db.ErrClosed {
		t.Errorf("Get after Close should return ErrClosed, got %v", err)
	}
}

func TestCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	database, err := New(db.Options{Path: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := database.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := writeFile(dir, []byte("garbage!!")); err != nil {
		t.Fatalf("overwrite snapshot: %v", err)
	}
	if _, err := New(db.Options{Path: dir}); err == nil {
		t.Errorf("expected an error for a corrupt snapshot")
	}
}

func writeFile(dir string, data []byte) error {
	return os.WriteFile(filepath.Join(dir, snapshotFile), data, 0o644)
}

func TestShardDistribution(t *testing.T) {
	opts := db.Options{Parallelism: 8}
	database, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	for i := 0; i < 400; i++ {
		if err := database.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	raw, err := json.Marshal(database.GetInfo().Metadata)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	var meta struct {
		ShardCount        int `json:"shard_count"`
		ShardDistribution struct {
			Mean float64 `json:"mean"`
			Min  float64 `json:"min"`
		} `json:"shard_distribution"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}

	if meta.ShardCount != 8 {
		t.Errorf("expected 8 shards, got %d", meta.ShardCount)
	}
	// the per-shard sizes add up to the record count
	if total := meta.ShardDistribution.Mean * float64(meta.ShardCount); math.Abs(total-400) > 1e-6 {
		t.Errorf("expected shard sizes to add up to 400, got %f", total)
	}
	if meta.ShardDistribution.Min == 0 {
		t.Errorf("expected every shard to hold keys")
	}
}
