package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/hcdkv/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory opens one engine. Backends call it once per shard with the options
// derived from their Config.
type DBFactory func(opts db.Options) (db.KVDB, error)

// Backend executes batches of commands against one or more engines.
// A Backend is shared by many goroutines; every method is safe for concurrent use
// except Close, which must not race with ExecuteBatch.
type Backend interface {
	// ExecuteBatch executes every command of the batch and resolves each entry
	// exactly once. It returns after all entries are resolved. Execution order
	// across entries is unspecified; there is no atomicity across entries.
	ExecuteBatch(batch *Batch)
	// Info returns one DatabaseInfo per engine (shard order).
	Info() []db.DatabaseInfo
	// Close closes all engines. A second Close returns ErrClosed.
	Close() error
}

// --------------------------------------------------------------------------
// Single-entry wrappers
// --------------------------------------------------------------------------

// PutOne stores a single entry.
func PutOne(b Backend, key, value []byte) error {
	batch := NewBatch(Put{Key: key, Value: value})
	b.ExecuteBatch(batch)
	return batch.Result(0).Err
}

// GetOne reads a single entry. The caller owns the returned buffer.
// A miss returns ErrNotFound.
func GetOne(b Backend, key []byte) (*db.OwnedBuffer, error) {
	batch := NewBatch(Get{Key: key})
	b.ExecuteBatch(batch)
	res := batch.Result(0)
	switch res.Status {
	case StatusSuccess:
		return res.Value, nil
	case StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, res.Err
	}
}

// DeleteOne removes a single entry and returns the size of the removed value.
// A miss returns ErrNotFound.
func DeleteOne(b Backend, key []byte) (int, error) {
	batch := NewBatch(Delete{Key: key})
	b.ExecuteBatch(batch)
	res := batch.Result(0)
	switch res.Status {
	case StatusSuccess:
		return int(res.N), nil
	case StatusNotFound:
		return -1, ErrNotFound
	default:
		return -1, res.Err
	}
}

// StatOne reads a statistic as a keyless single-entry batch.
func StatOne(b Backend, kind StatKind) (uint64, error) {
	batch := NewBatch(Stat{Kind: kind})
	b.ExecuteBatch(batch)
	res := batch.Result(0)
	if res.Status != StatusSuccess {
		return 0, res.Err
	}
	return res.N, nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("store error (%s): %s", e.Code, e.Msg)
}

// Is matches errors by code, so errors.Is(err, store.ErrNotFound) works for
// every NotFound error regardless of its message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf returns the RetCode of err, RetCInternalError for foreign errors and
// RetCSuccess for nil.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: The engine failed (backend error).
	RetCUnsupportedOperation                // 2: Operation is not supported by the underlying database.
	RetCInvalidOperation                    // 3: Malformed command.
	RetCNotFound                            // 4: Key does not exist.
	RetCConfigError                         // 5: Invalid configuration, returned by Open only.
	RetCAllocationFailure                   // 6: The caller could not allocate room for a value.
	RetCClosed                              // 7: The backend has been closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "BackendError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCConfigError:
		return "ConfigError"
	case RetCAllocationFailure:
		return "AllocationFailure"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrNotFound          = NewError(RetCNotFound, "key not found")
	ErrClosed            = NewError(RetCClosed, "store closed")
	ErrConfig            = NewError(RetCConfigError, "invalid configuration")
	ErrAllocationFailure = NewError(RetCAllocationFailure, "allocation failed")
)

// configErrorf builds a ConfigError.
func configErrorf(format string, args ...interface{}) *Error {
	return NewError(RetCConfigError, fmt.Sprintf(format, args...))
}

// fromDB maps an engine error to a store error.
func fromDB(op Op, err error) *Error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return NewError(RetCNotFound, fmt.Sprintf("%s: %v", op, err))
	case errors.Is(err, db.ErrClosed):
		return NewError(RetCClosed, fmt.Sprintf("%s: %v", op, err))
	case errors.Is(err, db.ErrUnsupported):
		return NewError(RetCUnsupportedOperation, fmt.Sprintf("%s: %v", op, err))
	default:
		return NewError(RetCInternalError, fmt.Sprintf("%s: %v", op, err))
	}
}
