package store

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Operation and Stat Kinds
// --------------------------------------------------------------------------

// Op identifies the kind of a Command.
type Op uint8

const (
	OpPut    Op = iota // Insert or update an entry.
	OpGet              // Look up an entry.
	OpDelete           // Remove an entry and report the size of the removed value.
	OpStat             // Keyless statistics query.
)

func (op Op) String() string {
	switch op {
	case OpPut:
		return "put"
	case OpGet:
		return "get"
	case OpDelete:
		return "delete"
	case OpStat:
		return "stat"
	default:
		return fmt.Sprintf("unknown(%d)", op)
	}
}

// StatKind selects the statistic a Stat command reads.
type StatKind uint8

const (
	StatRecordCount StatKind = iota // Number of stored records.
	StatDataSize                    // Logical size of all stored values in bytes.
	StatMemoryUsage                 // Memory held by engines and caches in bytes.
)

func (k StatKind) String() string {
	switch k {
	case StatRecordCount:
		return "RecordCount"
	case StatDataSize:
		return "DataSize"
	case StatMemoryUsage:
		return "MemoryUsage"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Command is one entry of a Batch. It is one of Put, Get, Delete or Stat;
// backends dispatch on the concrete type with a type switch.
// Commands are immutable once submitted.
type Command interface {
	Op() Op
	// command seals the interface to this package
	command()
}

// Put inserts or updates Key. The backend never retains Key or Value after
// the batch returns.
type Put struct {
	Key   []byte
	Value []byte
}

// Get looks up Key. On success the outcome carries a buffer the caller must release.
type Get struct {
	Key []byte
}

// Delete removes Key. On success the outcome carries the size of the removed value.
type Delete struct {
	Key []byte
}

// Stat reads a statistic of the whole backend.
type Stat struct {
	Kind StatKind
}

func (Put) Op() Op    { return OpPut }
func (Get) Op() Op    { return OpGet }
func (Delete) Op() Op { return OpDelete }
func (Stat) Op() Op   { return OpStat }

func (Put) command()    {}
func (Get) command()    {}
func (Delete) command() {}
func (Stat) command()   {}

// KeyOf returns the key of a command, nil for Stat.
func KeyOf(cmd Command) []byte {
	switch c := cmd.(type) {
	case Put:
		return c.Key
	case Get:
		return c.Key
	case Delete:
		return c.Key
	default:
		return nil
	}
}

// Validate checks a command before it reaches a backend. A command that fails
// validation is resolved to an error without touching any engine.
func Validate(cmd Command) error {
	switch c := cmd.(type) {
	case Put, Get, Delete:
		if len(KeyOf(c)) == 0 {
			return NewError(RetCInvalidOperation, fmt.Sprintf("%s: empty key", c.Op()))
		}
		return nil
	case Stat:
		if c.Kind > StatMemoryUsage {
			return NewError(RetCInvalidOperation, fmt.Sprintf("unknown stat kind %d", c.Kind))
		}
		return nil
	case nil:
		return NewError(RetCInvalidOperation, "nil command")
	default:
		return NewError(RetCInvalidOperation, fmt.Sprintf("unknown command type %T", cmd))
	}
}
