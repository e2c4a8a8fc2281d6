package db

import (
	"errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplPebble  Implementation = "pebble"
	ImplLevelDB Implementation = "leveldb"
	ImplMaple   Implementation = "maple"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut          Feature = 1 << iota // Support for Put operations
	FeatureGet                              // Support for Get operations
	FeatureHas                              // Support for Has operations
	FeatureDelete                           // Support for Delete operations
	FeatureAtomicDelete                     // Support for DeleteReturningSize operations
	FeaturePersistence                      // Data survives a clean Close and reopen of the same path
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureHas:
		return "Has"
	case FeatureDelete:
		return "Delete"
	case FeatureAtomicDelete:
		return "AtomicDelete"
	case FeaturePersistence:
		return "Persistence"
	default:
		return "Unknown"
	}
}

// DatabaseInfo is a point-in-time, non-transactional view of an engine.
// Records and DataBytes are maintained by the engine itself and are only
// exact when no writes are in flight.
type DatabaseInfo struct {
	Records           uint64         `json:"records"`
	DataBytes         uint64         `json:"data_bytes"`
	MemoryBytes       uint64         `json:"memory_bytes"`
	DbType            Implementation `json:"db_type"`
	Path              string         `json:"path"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned by Get and DeleteReturningSize if the key does not exist.
	ErrNotFound = errors.New("db: key not found")
	// ErrUnsupported is returned by operations the engine does not advertise via SupportsFeature.
	ErrUnsupported = errors.New("db: operation not supported")
	// ErrCapacityExceeded is returned by Put if the write would grow the engine beyond Options.CapacityBytes.
	ErrCapacityExceeded = errors.New("db: storage capacity exceeded")
	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("db: engine closed")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the narrow contract a storage engine has to satisfy to be used
// as a shard of a store. Implementations must be safe for concurrent use;
// this is the only synchronisation the layers above rely on.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or updates an entry. The engine must not retain key or value
	// after Put returns; the caller keeps ownership of both slices.
	Put(key, value []byte) error

	// Delete removes an entry. Deleting a key that does not exist is not an error.
	Delete(key []byte) error

	// DeleteReturningSize atomically removes an entry and returns the size of the
	// removed value. Returns ErrNotFound if the key did not exist.
	// Only available if SupportsFeature(FeatureAtomicDelete) is true.
	DeleteReturningSize(key []byte) (size int, err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for a key. On success the caller owns the returned
	// buffer and must call Release on it exactly once. Returns ErrNotFound on a miss.
	Get(key []byte) (buf *OwnedBuffer, err error)

	// Has checks whether a key exists.
	Has(key []byte) (ok bool, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database. Must never block on in-flight writes.
	GetInfo() (info DatabaseInfo)

	// Close releases all engine resources. The engine must not be used afterwards.
	Close() (err error)
}
