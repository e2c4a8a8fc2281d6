package kv

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetAllocator(t *testing.T) {
	alloc := NewBudgetAllocator(10)

	a, err := alloc.Alloc([]byte("a"), 1, 2, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), a.Key)
	assert.Equal(t, uint32(1), a.Flags)
	assert.Equal(t, int64(2), a.Exptime)
	assert.Len(t, a.Value, 6)

	_, err = alloc.Alloc([]byte("b"), 0, 0, 5)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.ErrorIs(t, err, store.ErrAllocationFailure)
	assert.Equal(t, store.RetCAllocationFailure, store.CodeOf(err))

	alloc.Free(a)
	assert.Zero(t, alloc.Used())

	_, err = alloc.Alloc([]byte("b"), 0, 0, 10)
	assert.NoError(t, err)
}

func TestBudgetAllocatorConcurrent(t *testing.T) {
	alloc := NewBudgetAllocator(1000)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got int
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := alloc.Alloc(nil, 0, 0, 10); err == nil {
					mu.Lock()
					got++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, got, "budget must admit exactly 1000 bytes")
	assert.Equal(t, uint64(1000), alloc.Used())
}

func TestHeapAllocatorCopiesKey(t *testing.T) {
	key := []byte("key")
	it, err := HeapAllocator{}.Alloc(key, 0, 0, 3)
	require.NoError(t, err)
	key[0] = 'X'
	assert.Equal(t, "key", string(it.Key))
}
