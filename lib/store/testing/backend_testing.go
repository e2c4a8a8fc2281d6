package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendFactory opens a fresh, empty backend for one test.
type BackendFactory func(t *testing.T) store.Backend

// RunBackendTests runs the behaviour every store.Backend variant has to share.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PutGet", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("MixedBatch", func(t *testing.T) {
			testMixedBatch(t, factory(t))
		})

		t.Run("BatchPairing", func(t *testing.T) {
			testBatchPairing(t, factory(t))
		})

		t.Run("Stats", func(t *testing.T) {
			testStats(t, factory(t))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func closeBackend(t *testing.T, b store.Backend) {
	if err := b.Close(); err != nil {
		assert.ErrorIs(t, err, store.ErrClosed)
	}
}

func getString(t *testing.T, b store.Backend, key string) (string, bool) {
	t.Helper()
	buf, err := store.GetOne(b, []byte(key))
	if err != nil {
		require.ErrorIs(t, err, store.ErrNotFound)
		return "", false
	}
	defer buf.Release()
	return string(buf.Bytes()), true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	require.NoError(t, store.PutOne(b, []byte("foo"), []byte("bar")))
	value, ok := getString(t, b, "foo")
	require.True(t, ok)
	assert.Equal(t, "bar", value)

	require.NoError(t, store.PutOne(b, []byte("foo"), []byte("baz")))
	value, ok = getString(t, b, "foo")
	require.True(t, ok)
	assert.Equal(t, "baz", value)

	_, ok = getString(t, b, "missing")
	assert.False(t, ok)

	// the backend must not retain the caller's value
	v := []byte("original")
	require.NoError(t, store.PutOne(b, []byte("copy"), v))
	v[0] = 'X'
	value, _ = getString(t, b, "copy")
	assert.Equal(t, "original", value)
}

func testDelete(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	require.NoError(t, store.PutOne(b, []byte("foo"), []byte("bar")))

	size, err := store.DeleteOne(b, []byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	size, err = store.DeleteOne(b, []byte("foo"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, -1, size)

	_, ok := getString(t, b, "foo")
	assert.False(t, ok)
}

func testMixedBatch(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	require.NoError(t, store.PutOne(b, []byte("existing"), []byte("value")))
	require.NoError(t, store.PutOne(b, []byte("doomed"), []byte("1234")))

	batch := store.NewBatch(
		store.Put{Key: []byte("new"), Value: []byte("v")},
		store.Get{Key: []byte("existing")},
		store.Get{Key: []byte("absent")},
		store.Delete{Key: []byte("doomed")},
		store.Delete{Key: []byte("absent")},
		store.Get{Key: nil},
		store.Stat{Kind: store.StatRecordCount},
	)
	b.ExecuteBatch(batch)
	require.True(t, batch.Done())
	defer batch.ReleaseAll()

	assert.Equal(t, store.StatusSuccess, batch.Result(0).Status)

	hit := batch.Result(1)
	require.Equal(t, store.StatusSuccess, hit.Status)
	assert.Equal(t, "value", string(hit.Value.Bytes()))

	assert.Equal(t, store.StatusNotFound, batch.Result(2).Status)

	deleted := batch.Result(3)
	require.Equal(t, store.StatusSuccess, deleted.Status)
	assert.Equal(t, uint64(4), deleted.N)

	assert.Equal(t, store.StatusNotFound, batch.Result(4).Status)

	malformed := batch.Result(5)
	assert.Equal(t, store.StatusError, malformed.Status)
	assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(malformed.Err))

	// the record count races with the other entries, it only has to be plausible
	stat := batch.Result(6)
	require.Equal(t, store.StatusSuccess, stat.Status)
	assert.LessOrEqual(t, stat.N, uint64(3))
}

func testBatchPairing(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	const n = 300
	puts := make([]store.Command, 0, n)
	for i := 0; i < n; i++ {
		puts = append(puts, store.Put{
			Key:   []byte(fmt.Sprintf("key-%d", i)),
			Value: bytes.Repeat([]byte{byte(i)}, i%17+1),
		})
	}
	putBatch := store.NewBatch(puts...)
	b.ExecuteBatch(putBatch)
	for i := 0; i < n; i++ {
		require.Equal(t, store.StatusSuccess, putBatch.Result(i).Status, "put %d: %v", i, putBatch.Result(i).Err)
	}

	// every third key misses
	gets := make([]store.Command, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		if i%3 == 0 {
			key = fmt.Sprintf("nokey-%d", i)
		}
		gets = append(gets, store.Get{Key: []byte(key)})
	}
	getBatch := store.NewBatch(gets...)
	b.ExecuteBatch(getBatch)
	defer getBatch.ReleaseAll()

	for i := 0; i < n; i++ {
		res := getBatch.Result(i)
		if i%3 == 0 {
			assert.Equal(t, store.StatusNotFound, res.Status, "entry %d", i)
			continue
		}
		require.Equal(t, store.StatusSuccess, res.Status, "entry %d", i)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, i%17+1), res.Value.Bytes(), "entry %d got another key's value", i)
	}
}

func testStats(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	records, err := store.StatOne(b, store.StatRecordCount)
	require.NoError(t, err)
	assert.Zero(t, records)

	value := bytes.Repeat([]byte("x"), 100)
	for i := 0; i < 20; i++ {
		require.NoError(t, store.PutOne(b, []byte(fmt.Sprintf("stat-%d", i)), value))
	}
	_, err = store.DeleteOne(b, []byte("stat-0"))
	require.NoError(t, err)

	records, err = store.StatOne(b, store.StatRecordCount)
	require.NoError(t, err)
	assert.Equal(t, uint64(19), records)

	size, err := store.StatOne(b, store.StatDataSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(1900), size)

	memory, err := store.StatOne(b, store.StatMemoryUsage)
	require.NoError(t, err)
	assert.Positive(t, memory)

	assert.NotEmpty(t, b.Info())
}

func testConcurrent(t *testing.T, b store.Backend) {
	defer closeBackend(t, b)

	const (
		workers   = 8
		perWorker = 100
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// stat readers run next to the writers and must never block them
	var statWg sync.WaitGroup
	statWg.Add(1)
	go func() {
		defer statWg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, err := store.StatOne(b, store.StatRecordCount)
				assert.NoError(t, err)
				_, err = store.StatOne(b, store.StatMemoryUsage)
				assert.NoError(t, err)
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-%d", w, i))
				value := []byte(fmt.Sprintf("value-%d-%d", w, i))

				batch := store.NewBatch(store.Put{Key: key, Value: value})
				b.ExecuteBatch(batch)
				assert.Equal(t, store.StatusSuccess, batch.Result(0).Status)

				buf, err := store.GetOne(b, key)
				if assert.NoError(t, err) {
					assert.Equal(t, value, buf.Bytes())
					buf.Release()
				}

				if i%4 == 0 {
					size, err := store.DeleteOne(b, key)
					assert.NoError(t, err)
					assert.Equal(t, len(value), size)
				}
			}
		}(w)
	}

	wg.Wait()
	close(stop)
	statWg.Wait()

	records, err := store.StatOne(b, store.StatRecordCount)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*perWorker*3/4), records)
}

func testClosed(t *testing.T, b store.Backend) {
	require.NoError(t, store.PutOne(b, []byte("k"), []byte("v")))
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), store.ErrClosed)

	batch := store.NewBatch(store.Get{Key: []byte("k")}, store.Stat{Kind: store.StatDataSize})
	b.ExecuteBatch(batch)
	for i := 0; i < batch.Len(); i++ {
		res := batch.Result(i)
		assert.Equal(t, store.StatusError, res.Status)
		assert.ErrorIs(t, res.Err, store.ErrClosed)
	}
}
