package kv

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/ValentinKolb/hcdkv/lib/store/caching"
	"github.com/ValentinKolb/hcdkv/lib/store/sharded"
	"github.com/ValentinKolb/hcdkv/lib/store/single"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("kv")

var allocationFailures = metrics.NewCounter(`hcdkv_item_allocation_failures_total`)

// Errors re-exported for callers that only import kv.
var (
	ErrNotFound = store.ErrNotFound
	ErrClosed   = store.ErrClosed
)

// Client is the item level interface of the cache server to its storage backend.
//
// Thread-safety: All methods except Close are safe for concurrent use.
type Client struct {
	backend store.Backend
	alloc   Allocator
}

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open opens the backend selected by cfg.Variant. alloc may be nil, items are
// then allocated on the heap.
func Open(cfg store.Config, alloc Allocator) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := store.FactoryFor(cfg.Engine)
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	switch cfg.Variant {
	case store.VariantSingle:
		backend, err = single.Open(cfg, factory)
	case store.VariantSharded:
		backend, err = sharded.Open(cfg, factory)
	case store.VariantCaching:
		backend, err = caching.Open(cfg, factory)
	}
	if err != nil {
		return nil, err
	}

	return NewClient(backend, alloc), nil
}

// NewClient wraps an open backend.
func NewClient(backend store.Backend, alloc Allocator) *Client {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	return &Client{backend: backend, alloc: alloc}
}

// OpenSharded opens numShards pebble engines over a comma separated path list.
// cacheMB is the total block cache, split evenly across shards. numShards 0 means
// one shard per path. The WAL is disabled, this form is meant for caches.
func OpenSharded(dbPathList string, numShards, cacheMB int) (*Client, error) {
	paths := util.SplitPathList(dbPathList)
	if numShards < 0 || cacheMB < 0 {
		return nil, store.NewError(store.RetCConfigError, fmt.Sprintf("invalid shard count %d or cache size %d", numShards, cacheMB))
	}

	cfg := store.Config{
		Variant:    store.VariantSharded,
		Engine:     db.ImplPebble,
		Paths:      paths,
		NumShards:  numShards,
		DisableWAL: true,
	}
	if shards := cfg.Shards(); shards > 0 {
		cfg.BlockCacheBytes = uint64(cacheMB) << 20 / uint64(shards)
	}
	return Open(cfg, nil)
}

// OpenCaching opens one pebble engine per path with storageSizes[i] bytes of
// capacity, splits indexBudget into their block caches and keeps up to
// dataCacheBudget bytes of values in memory. The WAL is disabled.
func OpenCaching(paths []string, storageSizes []uint64, indexBudget, dataCacheBudget uint64) (*Client, error) {
	return Open(store.Config{
		Variant:               store.VariantCaching,
		Engine:                db.ImplPebble,
		Paths:                 paths,
		StorageSizes:          storageSizes,
		IndexMemoryBudget:     indexBudget,
		DataCacheMemoryBudget: dataCacheBudget,
		DisableWAL:            true,
	}, nil)
}

// Close closes the backend. A second Close returns ErrClosed.
func (c *Client) Close() error {
	return c.backend.Close()
}

// Backend returns the underlying backend.
func (c *Client) Backend() store.Backend {
	return c.backend
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put stores value under key. Neither slice is retained.
func (c *Client) Put(key, value []byte) error {
	return store.PutOne(c.backend, key, value)
}

// PutItem stores the item's value under its key. Flags and Exptime are not
// persisted; expiry is the cache server's business.
func (c *Client) PutItem(it *Item) error {
	if it == nil {
		return store.NewError(store.RetCInvalidOperation, "nil item")
	}
	return c.Put(it.Key, it.Value)
}

// Delete removes key and returns the size of the removed value, or -1 and
// ErrNotFound if the key did not exist.
func (c *Client) Delete(key []byte) (int, error) {
	return store.DeleteOne(c.backend, key)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get reads a single key into a new item. A miss and an allocation failure both
// return (nil, false, nil).
func (c *Client) Get(key []byte) (*Item, bool, error) {
	items, err := c.MultiGet([][]byte{key})
	if len(items) == 0 {
		return nil, false, err
	}
	return items[0], true, err
}

// MultiGet reads all keys in one batch and returns an item for every hit, in
// request order. Each item carries its own key, so callers never have to pair
// results with requests by position.
//
// Every backend buffer is released exactly once: after its bytes were copied
// into the item, or right away if the allocator fails, in which case the key is
// reported as a miss. Entries that failed in the backend are skipped as well;
// their errors are joined into err, the returned items are valid either way.
func (c *Client) MultiGet(keys [][]byte) ([]*Item, error) {
	cmds := make([]store.Command, len(keys))
	for i, key := range keys {
		cmds[i] = store.Get{Key: key}
	}
	batch := store.NewBatch(cmds...)
	c.backend.ExecuteBatch(batch)

	items := make([]*Item, 0, len(keys))
	var errs []error
	for i := range keys {
		res := batch.Result(i)
		switch res.Status {
		case store.StatusSuccess:
			if it := c.bridge(keys[i], res.Value); it != nil {
				items = append(items, it)
			}
		case store.StatusNotFound:
		default:
			errs = append(errs, fmt.Errorf("get %q: %w", keys[i], res.Err))
		}
	}
	return items, errors.Join(errs...)
}

// bridge copies a backend buffer into a freshly allocated item and releases the
// buffer. It returns nil if the allocation failed.
func (c *Client) bridge(key []byte, buf *db.OwnedBuffer) *Item {
	defer buf.Release()

	it, err := c.alloc.Alloc(key, 0, 0, buf.Len())
	if err != nil {
		allocationFailures.Inc()
		log.Errorf("failed to alloc memory for item %q, data size %d: %v", key, buf.Len(), err)
		return nil
	}
	copy(it.Value, buf.Bytes())
	return it
}

// Free hands items returned by Get or MultiGet back to the allocator.
func (c *Client) Free(items ...*Item) {
	for _, it := range items {
		c.alloc.Free(it)
	}
}

// --------------------------------------------------------------------------
// Admin Queries
// --------------------------------------------------------------------------

// NumberOfRecords returns the approximate number of stored records.
func (c *Client) NumberOfRecords() (uint64, error) {
	return store.StatOne(c.backend, store.StatRecordCount)
}

// DataSize returns the approximate logical size of all stored values.
func (c *Client) DataSize() (uint64, error) {
	return store.StatOne(c.backend, store.StatDataSize)
}

// MemoryUsage returns the approximate memory used by engines and caches.
func (c *Client) MemoryUsage() (uint64, error) {
	return store.StatOne(c.backend, store.StatMemoryUsage)
}
