package kv

import (
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/store"
)

// ErrAllocationFailed is returned by an Allocator that has no room left.
var ErrAllocationFailed = store.ErrAllocationFailure

// Item is a cache item as the server sees it. Value is owned by the item.
type Item struct {
	Key     []byte
	Flags   uint32
	Exptime int64
	Value   []byte
}

// Allocator provides the memory items are built in. A server plugs in its slab
// allocator here; Alloc may fail when the slab class is full.
type Allocator interface {
	// Alloc returns an item with a copy of key and a Value of exactly size bytes.
	Alloc(key []byte, flags uint32, exptime int64, size int) (*Item, error)
	// Free returns an item obtained from Alloc.
	Free(it *Item)
}

// HeapAllocator allocates items on the Go heap and never fails.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(key []byte, flags uint32, exptime int64, size int) (*Item, error) {
	return newItem(key, flags, exptime, size), nil
}

func (HeapAllocator) Free(*Item) {}

// BudgetAllocator fails once the values of all live items exceed Limit bytes.
//
// Thread-safety: All methods are safe for concurrent use.
type BudgetAllocator struct {
	Limit uint64
	used  atomic.Uint64
}

// NewBudgetAllocator creates an allocator with a budget of limit bytes.
func NewBudgetAllocator(limit uint64) *BudgetAllocator {
	return &BudgetAllocator{Limit: limit}
}

func (a *BudgetAllocator) Alloc(key []byte, flags uint32, exptime int64, size int) (*Item, error) {
	for {
		used := a.used.Load()
		if used+uint64(size) > a.Limit {
			return nil, ErrAllocationFailed
		}
		if a.used.CompareAndSwap(used, used+uint64(size)) {
			return newItem(key, flags, exptime, size), nil
		}
	}
}

func (a *BudgetAllocator) Free(it *Item) {
	if it == nil {
		return
	}
	a.used.Add(^uint64(len(it.Value) - 1))
}

// Used returns the bytes currently allocated.
func (a *BudgetAllocator) Used() uint64 {
	return a.used.Load()
}

func newItem(key []byte, flags uint32, exptime int64, size int) *Item {
	k := make([]byte, len(key))
	copy(k, key)
	return &Item{
		Key:     k,
		Flags:   flags,
		Exptime: exptime,
		Value:   make([]byte, size),
	}
}
