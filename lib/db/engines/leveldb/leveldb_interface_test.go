package leveldb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	dbtesting "github.com/ValentinKolb/hcdkv/lib/db/testing"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "LevelDB", New)
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "LevelDB", New)
}

func TestRecountWithoutSidecar(t *testing.T) {
	opts := db.DefaultOptions(t.TempDir())

	database, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := database.Put([]byte(k), []byte("value")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// simulate an unclean shutdown
	if err := os.Remove(filepath.Join(opts.Path, util.SidecarFile)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}

	reopened, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	info := reopened.GetInfo()
	if info.Records != 3 || info.DataBytes != 15 {
		t.Errorf("expected 3 records / 15 bytes after recount, got %d / %d", info.Records, info.DataBytes)
	}
}
