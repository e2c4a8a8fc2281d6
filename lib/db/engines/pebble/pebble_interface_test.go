package pebble

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
	dbtesting "github.com/ValentinKolb/hcdkv/lib/db/testing"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "PebbleDB", New)
}

func TestWithoutWAL(t *testing.T) {
	dbtesting.RunKVDBTests(t, "PebbleDB(noWAL)", func(opts db.Options) (db.KVDB, error) {
		opts.DisableWAL = true
		return New(opts)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "PebbleDB", New)
}

func TestRequiresPath(t *testing.T) {
	if _, err := New(db.Options{}); err == nil {
		t.Fatalf("expected an error without a path")
	}
}

func TestBufferPinsValue(t *testing.T) {
	database, err := New(db.DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if err := database.Put([]byte("k"), []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	buf, err := database.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// an overwrite must not change the bytes of a buffer that is still held
	if err := database.Put([]byte("k"), []byte("second")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if string(buf.Bytes()) != "first" {
		t.Errorf("held buffer changed to %q", buf.Bytes())
	}
	buf.Release()
}

func TestRecountWithoutSidecar(t *testing.T) {
	opts := db.DefaultOptions(t.TempDir())
	opts.DisableWAL = true

	database, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := database.Put([]byte(fmt.Sprintf("k%d", i)), []byte("value")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// an unclean shutdown leaves no sidecar behind
	if err := os.Remove(filepath.Join(opts.Path, util.SidecarFile)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}

	reopened, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	info := reopened.GetInfo()
	if info.Records != 10 || info.DataBytes != 50 {
		t.Fatalf("expected 10 records / 50 bytes after recount, got %d / %d", info.Records, info.DataBytes)
	}

	// the recounted values keep working for deletes
	if err := reopened.Delete([]byte("k3")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if info := reopened.GetInfo(); info.Records != 9 || info.DataBytes != 45 {
		t.Errorf("expected 9 records / 45 bytes after delete, got %d / %d", info.Records, info.DataBytes)
	}
}
