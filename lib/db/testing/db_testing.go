package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
)

// DBFactory opens an engine with the given options. The suite always passes a
// fresh temporary directory as opts.Path, reopen tests pass the same path twice.
type DBFactory func(opts db.Options) (db.KVDB, error)

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	open := func(t *testing.T) db.KVDB {
		return mustOpen(t, factory, db.DefaultOptions(t.TempDir()))
	}

	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, open(t))
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, open(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t))
		})

		t.Run("DeleteReturningSize", func(t *testing.T) {
			testDeleteReturningSize(t, open(t))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, open(t))
		})

		t.Run("ReleaseOnce", func(t *testing.T) {
			testReleaseOnce(t, open(t))
		})

		t.Run("Stats", func(t *testing.T) {
			testStats(t, open(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})

		t.Run("Capacity", func(t *testing.T) {
			testCapacity(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, open(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, open(t))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, open(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skipf("feature %s not supported", feature)
	}
}

func mustOpen(t testing.TB, factory DBFactory, opts db.Options) db.KVDB {
	t.Helper()
	database, err := factory(opts)
	if err != nil {
		t.Fatalf("failed to open database at %q: %v", opts.Path, err)
	}
	return database
}

// closeDB closes the database at the end of a test, a double close is tolerated
func closeDB(t testing.TB, database db.KVDB) {
	if err := database.Close(); err != nil && !errors.Is(err, db.ErrClosed) {
		t.Errorf("Close failed: %v", err)
	}
}

// mustGet returns a copy of the value and releases the buffer
func mustGet(t testing.TB, database db.KVDB, key []byte) []byte {
	t.Helper()
	buf, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	defer buf.Release()
	return append([]byte(nil), buf.Bytes()...)
}

func mustPut(t testing.TB, database db.KVDB, key, value []byte) {
	t.Helper()
	if err := database.Put(key, value); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, database, testKey, testValue1)
	if got := mustGet(t, database, testKey); !bytes.Equal(got, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, got)
	}

	mustPut(t, database, testKey, testValue2)
	if got := mustGet(t, database, testKey); !bytes.Equal(got, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, got)
	}

	if _, err := database.Get([]byte("nonexistent-key")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent key, got %v", err)
	}
}

func testCopySemantics(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	key := []byte("copy-key")
	value := []byte("original")
	mustPut(t, database, key, value)

	// the engine must not retain the caller's slice
	value[0] = 'X'
	if got := mustGet(t, database, key); !bytes.Equal(got, []byte("original")) {
		t.Errorf("Put retained the caller's slice, got %s", got)
	}

	// a second Get must return the same bytes after the first buffer was released
	first, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.Release()

	if got := mustGet(t, database, key); !bytes.Equal(got, []byte("original")) {
		t.Errorf("stored value changed, got %s", got)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	testKey := []byte("delete-key")
	mustPut(t, database, testKey, []byte("delete-value"))

	if err := database.Delete(testKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := database.Get(testKey); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected key to be gone after Delete, got err=%v", err)
	}

	// Deleting a missing key is not an error
	if err := database.Delete([]byte("nonexistent-key")); err != nil {
		t.Errorf("Delete of missing key should succeed, got %v", err)
	}
}

func testDeleteReturningSize(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	if !database.SupportsFeature(db.FeatureAtomicDelete) {
		if _, err := database.DeleteReturningSize([]byte("k")); !errors.Is(err, db.ErrUnsupported) {
			t.Errorf("engine without atomic delete must return ErrUnsupported, got %v", err)
		}
		return
	}

	mustPut(t, database, []byte("sized"), []byte("12345"))

	size, err := database.DeleteReturningSize([]byte("sized"))
	if err != nil {
		t.Fatalf("DeleteReturningSize failed: %v", err)
	}
	if size != 5 {
		t.Errorf("Expected size 5, got %d", size)
	}

	if _, err := database.DeleteReturningSize([]byte("sized")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Second DeleteReturningSize should return ErrNotFound, got %v", err)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureHas)

	testKey := []byte("has-key")
	if ok, err := database.Has(testKey); err != nil || ok {
		t.Errorf("Expected Has to be false before Put, got %v (err=%v)", ok, err)
	}

	mustPut(t, database, testKey, []byte("v"))
	if ok, err := database.Has(testKey); err != nil || !ok {
		t.Errorf("Expected Has to be true after Put, got %v (err=%v)", ok, err)
	}
}

func testReleaseOnce(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	mustPut(t, database, []byte("r"), []byte("release-me"))

	buf, err := database.Get([]byte("r"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if buf.Len() != len("release-me") {
		t.Errorf("Expected Len %d, got %d", len("release-me"), buf.Len())
	}
	if !buf.Release() {
		t.Errorf("First Release should perform the release")
	}
	if buf.Release() {
		t.Errorf("Second Release must be a no-op")
	}
	if buf.Bytes() != nil {
		t.Errorf("Bytes must be nil after Release")
	}
	if buf.Len() != len("release-me") {
		t.Errorf("Len must survive Release")
	}
}

func testStats(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureDelete)

	info := database.GetInfo()
	if info.Records != 0 || info.DataBytes != 0 {
		t.Fatalf("Expected empty database, got records=%d bytes=%d", info.Records, info.DataBytes)
	}

	value := bytes.Repeat([]byte("v"), 100)
	for i := 0; i < 10; i++ {
		mustPut(t, database, []byte(fmt.Sprintf("stat-%d", i)), value)
	}

	info = database.GetInfo()
	if info.Records != 10 {
		t.Errorf("Expected 10 records, got %d", info.Records)
	}
	if info.DataBytes != 1000 {
		t.Errorf("Expected 1000 data bytes, got %d", info.DataBytes)
	}

	// overwrite replaces the size, it does not add a record
	mustPut(t, database, []byte("stat-0"), value[:50])
	if err := database.Delete([]byte("stat-1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// deleting a missing key must not change the counters
	if err := database.Delete([]byte("stat-missing")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	info = database.GetInfo()
	if info.Records != 9 {
		t.Errorf("Expected 9 records, got %d", info.Records)
	}
	if info.DataBytes != 850 {
		t.Errorf("Expected 850 data bytes, got %d", info.DataBytes)
	}
	if info.DbType == "" {
		t.Errorf("GetInfo must report the implementation")
	}
}

func testCapacity(t *testing.T, factory DBFactory) {
	opts := db.DefaultOptions(t.TempDir())
	opts.CapacityBytes = 10

	database := mustOpen(t, factory, opts)
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	mustPut(t, database, []byte("a"), []byte("12345678"))

	// overwrites are charged by their growth only
	mustPut(t, database, []byte("a"), []byte("abcdefgh"))
	mustPut(t, database, []byte("a"), []byte("123456789"))

	if err := database.Put([]byte("b"), []byte("12345")); !errors.Is(err, db.ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded for a new key, got %v", err)
	}
	if err := database.Put([]byte("a"), []byte("12345678901")); !errors.Is(err, db.ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded for a growing overwrite, got %v", err)
	}
	// a rejected write leaves the stored value and the counters untouched
	if got := mustGet(t, database, []byte("a")); string(got) != "123456789" {
		t.Errorf("Expected previous value after rejected put, got %q", got)
	}
	if _, err := database.Get([]byte("b")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Rejected key must not exist, err=%v", err)
	}
	if info := database.GetInfo(); info.Records != 1 || info.DataBytes != 9 {
		t.Errorf("Expected 1 record / 9 bytes, got %d / %d", info.Records, info.DataBytes)
	}

	// shrinking frees room for new keys
	mustPut(t, database, []byte("a"), []byte("1"))
	mustPut(t, database, []byte("b"), []byte("12345"))
}

func testReopen(t *testing.T, factory DBFactory) {
	opts := db.DefaultOptions(t.TempDir())

	database := mustOpen(t, factory, opts)
	if !database.SupportsFeature(db.FeaturePersistence) {
		closeDB(t, database)
		t.Skip("feature Persistence not supported")
	}

	for i := 0; i < 100; i++ {
		mustPut(t, database, []byte(fmt.Sprintf("persist-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
	}
	if err := database.Delete([]byte("persist-0")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	before := database.GetInfo()
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpen(t, factory, opts)
	defer closeDB(t, reopened)

	for i := 1; i < 100; i++ {
		key := []byte(fmt.Sprintf("persist-%d", i))
		if got := mustGet(t, reopened, key); string(got) != fmt.Sprintf("value-%d", i) {
			t.Errorf("Key %s: expected value-%d, got %s", key, i, got)
		}
	}
	if _, err := reopened.Get([]byte("persist-0")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Deleted key came back after reopen, err=%v", err)
	}

	after := reopened.GetInfo()
	if after.Records != before.Records || after.DataBytes != before.DataBytes {
		t.Errorf("Counters not restored: before=%d/%d after=%d/%d",
			before.Records, before.DataBytes, after.Records, after.DataBytes)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	t.Run("EmptyValue", func(t *testing.T) {
		mustPut(t, database, []byte("empty"), []byte{})
		if got := mustGet(t, database, []byte("empty")); len(got) != 0 {
			t.Errorf("Expected empty value, got %d bytes", len(got))
		}
		if ok, err := database.Has([]byte("empty")); err != nil || !ok {
			t.Errorf("Empty value must still be a hit")
		}
	})

	t.Run("BinaryKey", func(t *testing.T) {
		key := []byte{0x00, 0xff, 0x10, 0x00, 0x7f}
		mustPut(t, database, key, []byte("binary"))
		if got := mustGet(t, database, key); string(got) != "binary" {
			t.Errorf("Expected binary, got %s", got)
		}
		// a prefix of the key is a different key
		if _, err := database.Get(key[:2]); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for key prefix, got %v", err)
		}
	})

	t.Run("LargeValue", func(t *testing.T) {
		large := make([]byte, 4<<20)
		for i := range large {
			large[i] = byte(i % 251)
		}
		mustPut(t, database, []byte("large"), large)
		if got := mustGet(t, database, []byte("large")); !bytes.Equal(got, large) {
			t.Errorf("Large value corrupted (len %d)", len(got))
		}
	})

	t.Run("ManyKeys", func(t *testing.T) {
		for i := 0; i < 2000; i++ {
			mustPut(t, database, []byte(fmt.Sprintf("many-%05d", i)), []byte(fmt.Sprintf("%d", i)))
		}
		for i := 0; i < 2000; i += 97 {
			if got := mustGet(t, database, []byte(fmt.Sprintf("many-%05d", i))); string(got) != fmt.Sprintf("%d", i) {
				t.Errorf("many-%05d: got %s", i, got)
			}
		}
	})
}

func testClosed(t *testing.T, database db.KVDB) {
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := database.Close(); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Second Close should return ErrClosed, got %v", err)
	}
	if err := database.Put([]byte("k"), []byte("v")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Put after Close should return ErrClosed, got %v", err)
	}
	if _, err := database.Get([]byte("k")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Get after Close should return ErrClosed, got %v", err)
	}

	// stats must stay readable
	_ = database.GetInfo()
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer closeDB(t, database)

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	const (
		workers      = 8
		keysPerWorker = 250
	)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i))
				value := []byte(fmt.Sprintf("w%d-v%d", w, i))
				if err := database.Put(key, value); err != nil {
					errCh <- err
					return
				}
				buf, err := database.Get(key)
				if err != nil {
					errCh <- fmt.Errorf("get %s: %w", key, err)
					return
				}
				ok := bytes.Equal(buf.Bytes(), value)
				buf.Release()
				if !ok {
					errCh <- fmt.Errorf("read back wrong value for %s", key)
					return
				}
				// every other key is removed again
				if i%2 == 1 {
					if err := database.Delete(key); err != nil {
						errCh <- err
						return
					}
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	info := database.GetInfo()
	want := uint64(workers * keysPerWorker / 2)
	if info.Records != want {
		t.Errorf("Expected %d records after concurrent usage, got %d", want, info.Records)
	}

	var verifyWg sync.WaitGroup
	for w := 0; w < workers; w++ {
		verifyWg.Add(1)
		go func(w int) {
			defer verifyWg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i))
				ok, err := database.Has(key)
				if err != nil {
					t.Errorf("Has(%s): %v", key, err)
					continue
				}
				if ok != (i%2 == 0) {
					t.Errorf("Has(%s) = %v", key, ok)
				}
			}
		}(w)
	}
	verifyWg.Wait()
}
