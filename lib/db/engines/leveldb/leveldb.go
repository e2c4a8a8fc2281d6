package leveldb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	bloomBitsPerKey = 10
	lockStripes     = 256
	writeBuffer     = 4 << 20
)

var log = logger.GetLogger("db")

// levelImpl adapts goleveldb to db.KVDB.
type levelImpl struct {
	path      string
	ldb       *leveldb.DB
	writeOpts *opt.WriteOptions
	capacity  uint64
	counters  *util.Counters
	locks     *util.StripedLocks
	closed    atomic.Bool
}

// New opens (or creates) a goleveldb engine rooted at opts.Path.
//
// goleveldb has no switch to turn off its journal, opts.DisableWAL therefore
// only disables the journal fsyncs (NoSync).
func New(opts db.Options) (db.KVDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("leveldb: a path is required")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create leveldb dir %q: %w", opts.Path, err)
	}
	existing := exists(filepath.Join(opts.Path, "CURRENT"))

	compression := opt.NoCompression
	if opts.Compression {
		compression = opt.SnappyCompression
	}

	ldb, err := leveldb.OpenFile(opts.Path, &opt.Options{
		BlockCacheCapacity:     int(opts.BlockCacheBytes),
		WriteBuffer:            writeBuffer,
		Compression:            compression,
		NoSync:                 opts.DisableWAL,
		Filter:                 filter.NewBloomFilter(bloomBitsPerKey),
		CompactionL0Trigger:    4,
		OpenFilesCacheCapacity: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", opts.Path, err)
	}

	impl := &levelImpl{
		path:      opts.Path,
		ldb:       ldb,
		writeOpts: &opt.WriteOptions{Sync: opts.Sync && !opts.DisableWAL},
		capacity:  opts.CapacityBytes,
		counters:  util.NewCounters(),
		locks:     util.NewStripedLocks(lockStripes),
	}

	if err := impl.restoreCounters(existing); err != nil {
		_ = ldb.Close()
		return nil, err
	}

	log.Debugf("opened leveldb (path=%q, sync=%t, records=%d)", opts.Path, impl.writeOpts.Sync, impl.counters.Records())
	return impl, nil
}

// NewFactory returns New as a factory function.
func NewFactory() func(opts db.Options) (db.KVDB, error) {
	return New
}

// restoreCounters loads the sidecar of the last clean Close. If it is missing
// for an existing database the counters are rebuilt by a full scan.
func (l *levelImpl) restoreCounters(existing bool) error {
	snap, ok, err := util.LoadCounters(l.path)
	if err != nil {
		return fmt.Errorf("load stats of %q: %w", l.path, err)
	}
	if ok {
		l.counters.Restore(snap)
		return os.Remove(filepath.Join(l.path, util.SidecarFile))
	}
	if !existing {
		return nil
	}

	log.Warningf("no stats file in %q (unclean shutdown?), recounting", l.path)
	iter := l.ldb.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		l.counters.OnPut(-1, len(iter.Value()))
	}
	return iter.Error()
}

// probe returns the size of the stored value, or -1 if the key does not exist.
// Must be called with the key's stripe locked.
func (l *levelImpl) probe(key []byte) (int, error) {
	value, err := l.ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return len(value), nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (l *levelImpl) Put(key, value []byte) error {
	if l.closed.Load() {
		return db.ErrClosed
	}

	unlock := l.locks.Lock(key)
	defer unlock()

	oldSize, err := l.probe(key)
	if err != nil {
		return err
	}

	if l.capacity > 0 {
		grow := len(value)
		if oldSize > 0 {
			grow -= oldSize
		}
		if grow > 0 && l.counters.DataBytes()+uint64(grow) > l.capacity {
			return db.ErrCapacityExceeded
		}
	}

	if err := l.ldb.Put(key, value, l.writeOpts); err != nil {
		return err
	}
	l.counters.OnPut(oldSize, len(value))
	return nil
}

func (l *levelImpl) Delete(key []byte) error {
	if l.closed.Load() {
		return db.ErrClosed
	}

	unlock := l.locks.Lock(key)
	defer unlock()

	oldSize, err := l.probe(key)
	if err != nil || oldSize < 0 {
		return err
	}

	if err := l.ldb.Delete(key, l.writeOpts); err != nil {
		return err
	}
	l.counters.OnDelete(oldSize)
	return nil
}

func (l *levelImpl) DeleteReturningSize(_ []byte) (int, error) {
	return 0, db.ErrUnsupported
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value. goleveldb already hands out a private copy, the
// buffer has no release hook.
func (l *levelImpl) Get(key []byte) (*db.OwnedBuffer, error) {
	if l.closed.Load() {
		return nil, db.ErrClosed
	}

	value, err := l.ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	l.counters.OnRead(len(value))
	return db.NewOwnedBuffer(value, nil), nil
}

func (l *levelImpl) Has(key []byte) (bool, error) {
	if l.closed.Load() {
		return false, db.ErrClosed
	}
	return l.ldb.Has(key, nil)
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database. MemoryBytes is the block cache
// usage plus the configured write buffer.
func (l *levelImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		Records:           l.counters.Records(),
		DataBytes:         l.counters.DataBytes(),
		DbType:            db.ImplLevelDB,
		Path:              l.path,
		SupportedFeatures: features,
	}
	if l.closed.Load() {
		return info
	}

	cached := l.intProperty("leveldb.cachedblock")
	info.MemoryBytes = cached + writeBuffer
	info.Metadata = &struct {
		CachedBlockBytes uint64               `json:"cached_block_bytes"`
		OpenedTables     uint64               `json:"opened_tables"`
		Counters         util.CounterSnapshot `json:"counters"`
	}{
		CachedBlockBytes: cached,
		OpenedTables:     l.intProperty("leveldb.openedtables"),
		Counters:         l.counters.Snapshot(),
	}
	return info
}

func (l *levelImpl) intProperty(name string) uint64 {
	value, err := l.ldb.GetProperty(name)
	if err != nil {
		log.Debugf("leveldb property %s: %v", name, err)
		return 0
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var features = []db.Feature{
	db.FeaturePut, db.FeatureGet, db.FeatureHas,
	db.FeatureDelete, db.FeaturePersistence,
}

func (l *levelImpl) SupportsFeature(feature db.Feature) bool {
	var supported db.Feature
	for _, f := range features {
		supported |= f
	}
	return supported&feature == feature
}

// Close writes the stats sidecar and closes goleveldb.
func (l *levelImpl) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}

	var errs []error
	if err := util.SaveCounters(l.path, l.counters.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("save stats: %w", err))
	}
	if err := l.ldb.Close(); err != nil {
		errs = append(errs, err)
	}

	log.Debugf("closed leveldb (path=%q)", l.path)
	return errors.Join(errs...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
