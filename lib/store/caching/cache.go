package caching

import (
	"math"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/golang-lru/simplelru"
)

var (
	cacheHits      = metrics.NewCounter(`hcdkv_data_cache_requests_total{result="hit"}`)
	cacheMisses    = metrics.NewCounter(`hcdkv_data_cache_requests_total{result="miss"}`)
	cacheEvictions = metrics.NewCounter(`hcdkv_data_cache_evictions_total`)
)

// maxEntryShare limits a single value to 1/maxEntryShare of the budget, so one
// large value cannot flush the whole cache.
const maxEntryShare = 8

// dataCache is a byte-bounded LRU of values. Stored slices are private copies and
// are never mutated.
type dataCache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU
	bytes  uint64
	budget uint64
}

// newDataCache returns nil for a zero budget; all methods accept a nil cache.
func newDataCache(budget uint64) (*dataCache, error) {
	if budget == 0 {
		return nil, nil
	}
	c := &dataCache{budget: budget}
	lru, err := simplelru.NewLRU(math.MaxInt32, func(key, value interface{}) {
		c.bytes -= entrySize(key.(string), value.([]byte))
	})
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

func entrySize(key string, value []byte) uint64 {
	return uint64(len(key) + len(value))
}

// get returns the cached slice. Callers must copy it before handing it out.
func (c *dataCache) get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	v, ok := c.lru.Get(string(key))
	c.mu.Unlock()

	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v.([]byte), true
}

// admit stores a copy of value, evicting the least recently used entries until
// the cache fits its budget again.
func (c *dataCache) admit(key, value []byte) {
	if c == nil {
		return
	}
	k := string(key)
	size := entrySize(k, value)
	if size > c.budget/maxEntryShare {
		return
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Add on an existing key would not run the evict callback
	c.lru.Remove(k)
	c.lru.Add(k, cp)
	c.bytes += size
	for c.bytes > c.budget {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		cacheEvictions.Inc()
	}
}

// invalidate drops key from the cache.
func (c *dataCache) invalidate(key []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lru.Remove(string(key))
	c.mu.Unlock()
}

// size returns the bytes held by the cache.
func (c *dataCache) size() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *dataCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
