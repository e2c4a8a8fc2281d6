package pebble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	numLevels       = 7
	bloomBitsPerKey = 10
	lockStripes     = 256
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Pebble engine
// --------------------------------------------------------------------------

// pebbleImpl adapts a pebble LSM tree to db.KVDB.
type pebbleImpl struct {
	path       string
	pdb        *pebble.DB
	cache      *pebble.Cache
	writeOpts  *pebble.WriteOptions
	disableWAL bool
	capacity   uint64
	counters   *util.Counters
	locks      *util.StripedLocks
	closed     atomic.Bool
}

// New opens (or creates) a pebble engine rooted at opts.Path.
//
// The block cache is sized by opts.BlockCacheBytes, a bloom filter is attached to
// every level and compression is only enabled if opts.Compression is set. With
// opts.DisableWAL the memtable is flushed on Close, so a clean shutdown keeps all data.
//
// Thread-safety: This function is not thread-safe and should only be called once
// per path.
func New(opts db.Options) (db.KVDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebble: a path is required")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create pebble dir %q: %w", opts.Path, err)
	}
	existing := exists(filepath.Join(opts.Path, "CURRENT"))

	cache := pebble.NewCache(int64(opts.BlockCacheBytes))

	compression := pebble.NoCompression
	if opts.Compression {
		compression = pebble.SnappyCompression
	}
	levels := make([]pebble.LevelOptions, numLevels)
	for i := range levels {
		levels[i] = pebble.LevelOptions{
			Compression:  compression,
			FilterPolicy: bloom.FilterPolicy(bloomBitsPerKey),
		}
	}

	pOpts := &pebble.Options{
		Cache:                 cache,
		DisableWAL:            opts.DisableWAL,
		Levels:                levels,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 36,
		Logger:                pebbleLogger{},
	}

	pdb, err := pebble.Open(opts.Path, pOpts)
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("open pebble %q: %w", opts.Path, err)
	}

	impl := &pebbleImpl{
		path:       opts.Path,
		pdb:        pdb,
		cache:      cache,
		writeOpts:  pebble.NoSync,
		disableWAL: opts.DisableWAL,
		capacity:   opts.CapacityBytes,
		counters:   util.NewCounters(),
		locks:      util.NewStripedLocks(lockStripes),
	}
	if opts.Sync && !opts.DisableWAL {
		impl.writeOpts = pebble.Sync
	}

	if err := impl.restoreCounters(existing); err != nil {
		_ = pdb.Close()
		cache.Unref()
		return nil, err
	}

	log.Debugf("opened pebble db (path=%q, wal=%t, records=%d)", opts.Path, !opts.DisableWAL, impl.counters.Records())
	return impl, nil
}

// NewFactory returns New as a factory function.
func NewFactory() func(opts db.Options) (db.KVDB, error) {
	return New
}

// restoreCounters loads the sidecar written by the last clean Close and removes
// it, so a crash in this session cannot bring back stale values. Without a
// sidecar an existing database is recounted by a full scan.
func (p *pebbleImpl) restoreCounters(existing bool) error {
	snap, ok, err := util.LoadCounters(p.path)
	if err != nil {
		return fmt.Errorf("load stats of %q: %w", p.path, err)
	}
	if ok {
		p.counters.Restore(snap)
		if err := os.Remove(filepath.Join(p.path, util.SidecarFile)); err != nil {
			return fmt.Errorf("remove stats of %q: %w", p.path, err)
		}
		return nil
	}
	if !existing {
		return nil
	}

	log.Warningf("no stats file in %q (unclean shutdown?), recounting", p.path)
	iter := p.pdb.NewIter(nil)
	for iter.First(); iter.Valid(); iter.Next() {
		p.counters.OnPut(-1, len(iter.Value()))
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("recount %q: %w", p.path, err)
	}
	return nil
}

// probe returns the size of the stored value, or -1 if the key does not exist.
// Must be called with the key's stripe locked.
func (p *pebbleImpl) probe(key []byte) (int, error) {
	value, closer, err := p.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	size := len(value)
	if err := closer.Close(); err != nil {
		return 0, err
	}
	return size, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or updates an entry. Pebble copies key and value into its batch.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *pebbleImpl) Put(key, value []byte) error {
	if p.closed.Load() {
		return db.ErrClosed
	}

	unlock := p.locks.Lock(key)
	defer unlock()

	oldSize, err := p.probe(key)
	if err != nil {
		return err
	}

	if p.capacity > 0 {
		grow := len(value)
		if oldSize > 0 {
			grow -= oldSize
		}
		if grow > 0 && p.counters.DataBytes()+uint64(grow) > p.capacity {
			return db.ErrCapacityExceeded
		}
	}

	if err := p.pdb.Set(key, value, p.writeOpts); err != nil {
		return err
	}
	p.counters.OnPut(oldSize, len(value))
	return nil
}

// Delete removes an entry, deleting a missing key is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *pebbleImpl) Delete(key []byte) error {
	if p.closed.Load() {
		return db.ErrClosed
	}

	unlock := p.locks.Lock(key)
	defer unlock()

	oldSize, err := p.probe(key)
	if err != nil {
		return err
	}
	if oldSize < 0 {
		return nil
	}

	if err := p.pdb.Delete(key, p.writeOpts); err != nil {
		return err
	}
	p.counters.OnDelete(oldSize)
	return nil
}

// DeleteReturningSize is not offered by pebble, callers fall back to Get + Delete.
func (p *pebbleImpl) DeleteReturningSize(_ []byte) (int, error) {
	return 0, db.ErrUnsupported
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns the value without copying it out of pebble. The buffer pins the
// underlying block until it is released.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *pebbleImpl) Get(key []byte) (*db.OwnedBuffer, error) {
	if p.closed.Load() {
		return nil, db.ErrClosed
	}

	value, closer, err := p.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.counters.OnRead(len(value))
	return db.NewOwnedBuffer(value, func() {
		if err := closer.Close(); err != nil {
			log.Errorf("failed to release pebble value: %v", err)
		}
	}), nil
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *pebbleImpl) Has(key []byte) (bool, error) {
	if p.closed.Load() {
		return false, db.ErrClosed
	}
	_, closer, err := p.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database. MemoryBytes is the block cache
// usage plus the memtables.
func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		Records:           p.counters.Records(),
		DataBytes:         p.counters.DataBytes(),
		DbType:            db.ImplPebble,
		Path:              p.path,
		SupportedFeatures: features,
	}
	if p.closed.Load() {
		return info
	}

	m := p.pdb.Metrics()
	var cacheSize uint64
	if m.BlockCache.Size > 0 {
		cacheSize = uint64(m.BlockCache.Size)
	}
	info.MemoryBytes = cacheSize + m.MemTable.Size
	info.Metadata = &struct {
		BlockCacheBytes uint64               `json:"block_cache_bytes"`
		BlockCacheHits  int64                `json:"block_cache_hits"`
		BlockCacheMiss  int64                `json:"block_cache_misses"`
		MemTableBytes   uint64               `json:"memtable_bytes"`
		DiskBytes       uint64               `json:"disk_bytes"`
		WALDisabled     bool                 `json:"wal_disabled"`
		Counters        util.CounterSnapshot `json:"counters"`
	}{
		BlockCacheBytes: cacheSize,
		BlockCacheHits:  m.BlockCache.Hits,
		BlockCacheMiss:  m.BlockCache.Misses,
		MemTableBytes:   m.MemTable.Size,
		DiskBytes:       m.DiskSpaceUsage(),
		WALDisabled:     p.disableWAL,
		Counters:        p.counters.Snapshot(),
	}
	return info
}

var features = []db.Feature{
	db.FeaturePut, db.FeatureGet, db.FeatureHas,
	db.FeatureDelete, db.FeaturePersistence,
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (p *pebbleImpl) SupportsFeature(feature db.Feature) bool {
	var supported db.Feature
	for _, f := range features {
		supported |= f
	}
	return supported&feature == feature
}

// Close flushes the memtable if the WAL is disabled, writes the stats sidecar and
// closes pebble. All buffers returned by Get must be released before.
func (p *pebbleImpl) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}

	var errs []error
	if p.disableWAL {
		if err := p.pdb.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush memtable: %w", err))
		}
	}
	if err := util.SaveCounters(p.path, p.counters.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("save stats: %w", err))
	}
	if err := p.pdb.Close(); err != nil {
		errs = append(errs, err)
	}
	p.cache.Unref()

	log.Debugf("closed pebble db (path=%q)", p.path)
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// pebbleLogger routes pebble's own messages into the "db" logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf("pebble: "+format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf("pebble: "+format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf("pebble: "+format, args...)
}
