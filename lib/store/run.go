package store

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Batch Runner
// --------------------------------------------------------------------------

// ExecFunc executes one validated command and returns its outcome.
type ExecFunc func(cmd Command) Outcome

// Runner is the batch executor shared by all backend variants. It validates
// every entry, calls the variant's ExecFunc, resolves the entry and counts the
// outcome in hcdkv_commands_total.
type Runner struct {
	Variant     Variant
	Parallelism int
}

// Run executes all entries of the batch. With Parallelism > 1 entries are spread
// over at most Parallelism goroutines, so the order across entries is unspecified.
func (r Runner) Run(batch *Batch, exec ExecFunc) {
	n := batch.Len()
	limit := r.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	if n <= 1 || limit == 1 {
		for i := 0; i < n; i++ {
			r.Do(batch, i, exec)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r.Do(batch, i, exec)
			return nil
		})
	}
	_ = g.Wait()
}

// Do validates, executes and resolves entry i.
//
// Thread-safety: This method is thread-safe for distinct entries.
func (r Runner) Do(batch *Batch, i int, exec ExecFunc) {
	cmd := batch.Command(i)

	var out Outcome
	if err := Validate(cmd); err != nil {
		out = Failed(err)
	} else {
		out = exec(cmd)
	}

	r.Resolve(batch, i, out)
}

// Resolve resolves entry i and records the outcome.
func (r Runner) Resolve(batch *Batch, i int, out Outcome) {
	op := opName(batch.Command(i))
	if out.Status == StatusError {
		log.Debugf("%s %s: entry %d failed: %v", r.Variant, op, i, out.Err)
	}
	commandCounter(r.Variant, op, out.Status).Inc()
	batch.Resolve(i, out)
}

// FailAll resolves every entry with err. Used when the backend is closed.
func (r Runner) FailAll(batch *Batch, err error) {
	for i := 0; i < batch.Len(); i++ {
		r.Resolve(batch, i, Failed(err))
	}
}

func opName(cmd Command) string {
	switch c := cmd.(type) {
	case Put, Get, Delete, Stat:
		return c.Op().String()
	default:
		return "invalid"
	}
}

func commandCounter(variant Variant, op string, status Status) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`hcdkv_commands_total{variant=%q,op=%q,outcome=%q}`, variant, op, status))
}

// --------------------------------------------------------------------------
// Engine execution
// --------------------------------------------------------------------------

// ExecOnEngine executes a keyed command (Put, Get or Delete) against one engine.
// Stat commands are answered by the backend and rejected here.
func ExecOnEngine(engine db.KVDB, cmd Command) Outcome {
	switch c := cmd.(type) {
	case Put:
		if err := engine.Put(c.Key, c.Value); err != nil {
			return Failed(fromDB(OpPut, err))
		}
		return Success()

	case Get:
		buf, err := engine.Get(c.Key)
		if errors.Is(err, db.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return Failed(fromDB(OpGet, err))
		}
		return Found(buf)

	case Delete:
		size, err := DeleteReturningSize(engine, c.Key)
		if errors.Is(err, db.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return Failed(fromDB(OpDelete, err))
		}
		return Count(uint64(size))

	default:
		return Failed(NewError(RetCInvalidOperation, fmt.Sprintf("%s cannot be executed on an engine", cmd.Op())))
	}
}

// DeleteReturningSize removes key and returns the size of the removed value.
// Engines with FeatureAtomicDelete do this in one step. For all others the value
// is read first and deleted afterwards: a concurrent Put of the same key between
// the two steps is deleted as well while the reported size is the one of the old
// value. The store does not lock around the two steps.
func DeleteReturningSize(engine db.KVDB, key []byte) (int, error) {
	if engine.SupportsFeature(db.FeatureAtomicDelete) {
		return engine.DeleteReturningSize(key)
	}

	buf, err := engine.Get(key)
	if err != nil {
		return 0, err
	}
	size := buf.Len()
	buf.Release()

	if err := engine.Delete(key); err != nil {
		return 0, err
	}
	return size, nil
}

// StatOf reads a statistic from engine infos.
func StatOf(kind StatKind, infos []db.DatabaseInfo) uint64 {
	var total uint64
	for _, info := range infos {
		switch kind {
		case StatRecordCount:
			total += info.Records
		case StatDataSize:
			total += info.DataBytes
		case StatMemoryUsage:
			total += info.MemoryBytes
		}
	}
	return total
}
