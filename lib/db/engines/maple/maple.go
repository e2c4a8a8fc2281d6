package maple

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum      = "MAPLEDB\x00" // File format identifier
	mapleVersion  = 4             // Snapshot format version
	snapshotFile  = "maple.snapshot"
	entryOverhead = 48 // map slot, string header, slice header
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	path     string
	shards   []*internal.Shard
	counters *util.Counters
	keyBytes *xsync.Counter
	capacity uint64
	closed   atomic.Bool
}

// New creates a maple database. If opts.Path is set, the snapshot written by a
// previous clean Close is loaded and a new snapshot is written on Close.
// Writes since the last clean Close are lost on a crash.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func New(opts db.Options) (db.KVDB, error) {
	numShards := opts.Threads()

	shards := make([]*internal.Shard, numShards)
	for i := 0; i < numShards; i++ {
		shards[i] = internal.NewShard()
	}

	maple := &mapleImpl{
		path:     opts.Path,
		shards:   shards,
		counters: util.NewCounters(),
		keyBytes: xsync.NewCounter(),
		capacity: opts.CapacityBytes,
	}

	if maple.path != "" {
		if err := os.MkdirAll(maple.path, 0o755); err != nil {
			return nil, fmt.Errorf("create maple dir %q: %w", maple.path, err)
		}
		if err := maple.load(); err != nil {
			return nil, fmt.Errorf("load maple snapshot %q: %w", maple.path, err)
		}
	}

	log.Debugf("opened maple db (path=%q, shards=%d, records=%d)", maple.path, numShards, maple.counters.Records())
	return maple, nil
}

// NewFactory returns New as a factory function.
func NewFactory() func(opts db.Options) (db.KVDB, error) {
	return New
}

func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or updates an entry. The value is copied.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Put(key, value []byte) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}

	k := string(key)
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	// the capacity check runs inside Compute, so it sees the value being replaced;
	// concurrent writers to other keys may still overshoot slightly
	oldSize := -1
	exceeded := false
	maple.shardFor(k).Data.Compute(k, func(old []byte, loaded bool) ([]byte, bool) {
		grow := len(value)
		if loaded {
			grow -= len(old)
		}
		if maple.capacity > 0 && grow > 0 && maple.counters.DataBytes()+uint64(grow) > maple.capacity {
			exceeded = true
			return old, !loaded
		}
		if loaded {
			oldSize = len(old)
		}
		return valueCopy, false
	})
	if exceeded {
		return db.ErrCapacityExceeded
	}

	if oldSize < 0 {
		maple.keyBytes.Add(int64(len(k)))
	}
	maple.counters.OnPut(oldSize, len(value))
	return nil
}

// Delete removes an entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key []byte) error {
	_, err := maple.DeleteReturningSize(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteReturningSize removes an entry and returns the size of the removed value
// in one atomic step.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) DeleteReturningSize(key []byte) (int, error) {
	if maple.closed.Load() {
		return 0, db.ErrClosed
	}

	k := string(key)
	old, loaded := maple.shardFor(k).Data.LoadAndDelete(k)
	if !loaded {
		return 0, db.ErrNotFound
	}

	maple.keyBytes.Add(-int64(len(k)))
	maple.counters.OnDelete(len(old))
	return len(old), nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned buffer holds a copy of the stored data, its release hook is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key []byte) (*db.OwnedBuffer, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}

	// stored slices are never mutated after insertion, copying outside of the map lock is safe
	value, ok := maple.shardFor(string(key)).Data.Load(string(key))
	if !ok {
		return nil, db.ErrNotFound
	}

	maple.counters.OnRead(len(value))
	return db.CopyBuffer(value), nil
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key []byte) (bool, error) {
	if maple.closed.Load() {
		return false, db.ErrClosed
	}
	_, ok := maple.shardFor(string(key)).Data.Load(string(key))
	return ok, nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// save writes a snapshot of all shards to the writer.
// Concurrent writes are allowed but may or may not be part of the snapshot.
func (maple *mapleImpl) save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	var writeErr error
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			// entry marker, key length, key, value length, value
			if writeErr = bw.WriteByte(1); writeErr != nil {
				return false
			}
			if writeErr = binary.Write(bw, binary.LittleEndian, uint32(len(key))); writeErr != nil {
				return false
			}
			if _, writeErr = bw.WriteString(key); writeErr != nil {
				return false
			}
			if writeErr = binary.Write(bw, binary.LittleEndian, uint32(len(value))); writeErr != nil {
				return false
			}
			_, writeErr = bw.Write(value)
			return writeErr == nil
		})
		if writeErr != nil {
			return writeErr
		}
	}

	// end marker
	if err := bw.WriteByte(0); err != nil {
		return err
	}

	return bw.Flush()
}

// restore loads a snapshot written by save into the (empty) shards.
//
// Thread-safety: This function is not thread-safe, it is only called during New.
func (maple *mapleImpl) restore(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	for {
		marker, err := br.ReadByte()
		if err != nil {
			return err
		}
		if marker == 0 {
			return nil
		}

		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		k := string(key)
		maple.shardFor(k).Data.Store(k, value)
		maple.keyBytes.Add(int64(len(k)))
		maple.counters.OnPut(-1, len(value))
	}
}

func (maple *mapleImpl) load() error {
	f, err := os.Open(filepath.Join(maple.path, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return maple.restore(f)
}

func (maple *mapleImpl) persist() error {
	tmp, err := os.CreateTemp(maple.path, snapshotFile+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := maple.save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(maple.path, snapshotFile))
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	records := maple.counters.Records()
	dataBytes := maple.counters.DataBytes()
	keyBytes := maple.keyBytes.Value()
	if keyBytes < 0 {
		keyBytes = 0
	}

	shardSizes := make([]uint64, len(maple.shards))
	for i, shard := range maple.shards {
		shardSizes[i] = uint64(shard.Data.Size())
	}

	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Counters          util.CounterSnapshot   `json:"counters"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Counters:          maple.counters.Snapshot(),
		Info:              "MemoryBytes is an estimate based on key and value sizes plus a fixed per-entry overhead.",
	}

	return db.DatabaseInfo{
		Records:           records,
		DataBytes:         dataBytes,
		MemoryBytes:       dataBytes + uint64(keyBytes) + records*entryOverhead,
		DbType:            db.ImplMaple,
		Path:              maple.path,
		SupportedFeatures: maple.features(),
		Metadata:          meta,
	}
}

func (maple *mapleImpl) features() []db.Feature {
	features := []db.Feature{
		db.FeaturePut, db.FeatureGet, db.FeatureHas,
		db.FeatureDelete, db.FeatureAtomicDelete,
	}
	if maple.path != "" {
		features = append(features, db.FeaturePersistence)
	}
	return features
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	var supported db.Feature
	for _, f := range maple.features() {
		supported |= f
	}
	return supported&feature == feature
}

// Close writes the snapshot (if a path is configured) and drops all data.
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}

	var err error
	if maple.path != "" {
		err = maple.persist()
	}

	for i := range maple.shards {
		maple.shards[i].Data.Clear()
	}

	log.Debugf("closed maple db (path=%q)", maple.path)
	return err
}
