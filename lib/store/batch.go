package store

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/hcdkv/lib/db"
)

// --------------------------------------------------------------------------
// Outcome
// --------------------------------------------------------------------------

// Status is the state of a single batch entry.
type Status uint8

const (
	StatusPending  Status = iota // Not yet executed.
	StatusSuccess                // Executed, see Outcome.Value / Outcome.N.
	StatusNotFound               // GET or DELETE of a missing key.
	StatusError                  // Failed, see Outcome.Err.
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Outcome is the result of one Command.
//
//   - Put:    StatusSuccess or StatusError
//   - Get:    StatusSuccess with Value, StatusNotFound or StatusError
//   - Delete: StatusSuccess with N = size of the removed value, StatusNotFound or StatusError
//   - Stat:   StatusSuccess with N = the statistic
type Outcome struct {
	Status Status
	Value  *db.OwnedBuffer
	N      uint64
	Err    error
}

// Success returns a successful outcome without payload.
func Success() Outcome { return Outcome{Status: StatusSuccess} }

// Found returns a successful GET outcome owning buf.
func Found(buf *db.OwnedBuffer) Outcome { return Outcome{Status: StatusSuccess, Value: buf} }

// Count returns a successful DELETE or STAT outcome.
func Count(n uint64) Outcome { return Outcome{Status: StatusSuccess, N: n} }

// NotFound returns a miss.
func NotFound() Outcome { return Outcome{Status: StatusNotFound} }

// Failed returns an error outcome.
func Failed(err error) Outcome { return Outcome{Status: StatusError, Err: err} }

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

type entry struct {
	cmd      Command
	outcome  Outcome
	claimed  atomic.Bool
	resolved atomic.Bool
}

// Batch is an ordered, fixed-size list of commands with one outcome slot per
// command. Backends resolve every slot exactly once, possibly from several
// goroutines; entry i's outcome always belongs to command i.
type Batch struct {
	entries []entry
}

// NewBatch creates a batch of pending entries.
func NewBatch(cmds ...Command) *Batch {
	b := &Batch{entries: make([]entry, len(cmds))}
	for i, cmd := range cmds {
		b.entries[i].cmd = cmd
	}
	return b
}

// Len returns the number of entries.
func (b *Batch) Len() int {
	return len(b.entries)
}

// Command returns the command of entry i.
func (b *Batch) Command(i int) Command {
	return b.entries[i].cmd
}

// Result returns the outcome of entry i. Before the batch was executed the
// status is StatusPending.
func (b *Batch) Result(i int) Outcome {
	e := &b.entries[i]
	if !e.resolved.Load() {
		return Outcome{Status: StatusPending}
	}
	return e.outcome
}

// Resolve stores the outcome of entry i. Resolving an entry twice is a bug in
// the backend and panics.
//
// Thread-safety: different entries may be resolved concurrently.
func (b *Batch) Resolve(i int, o Outcome) {
	e := &b.entries[i]
	if o.Status == StatusPending {
		panic(fmt.Sprintf("store: entry %d resolved as pending", i))
	}
	if !e.claimed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("store: entry %d resolved twice", i))
	}
	e.outcome = o
	e.resolved.Store(true)
}

// Done reports whether every entry has been resolved.
func (b *Batch) Done() bool {
	for i := range b.entries {
		if !b.entries[i].resolved.Load() {
			return false
		}
	}
	return true
}

// ReleaseAll releases every GET buffer still held by the batch. Callers use it
// on paths where they give up on the results.
func (b *Batch) ReleaseAll() {
	for i := range b.entries {
		if b.entries[i].resolved.Load() {
			b.entries[i].outcome.Value.Release()
		}
	}
}
