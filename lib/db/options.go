package db

import (
	"fmt"
	"runtime"
	"strings"
)

// Options configures an engine. It is built once before the engine is opened
// and owned by the engine for its whole lifetime; engines must not mutate it.
type Options struct {
	// Path is the root directory of the engine. Engines that support running
	// without persistence (maple) accept an empty path.
	Path string

	// Sync forces an fsync after every write.
	Sync bool

	// DisableWAL turns off the write-ahead log (or its fsyncs, depending on the
	// engine). Writes acknowledged right before a crash may be lost, existing
	// data stays intact. Only use this when the store is a cache.
	DisableWAL bool

	// Parallelism is the number of background threads / write buffers the
	// engine may use. 0 means runtime.NumCPU().
	Parallelism int

	// BlockCacheBytes is the memory budget for index, filter and data blocks.
	BlockCacheBytes uint64

	// Compression enables block compression. Off by default since the values
	// stored by the cache server are usually already compressed.
	Compression bool

	// CapacityBytes limits the logical data size of the engine (0 = unlimited).
	CapacityBytes uint64
}

// DefaultOptions returns the options used if nothing else is configured.
func DefaultOptions(path string) Options {
	return Options{
		Path:            path,
		Parallelism:     runtime.NumCPU(),
		BlockCacheBytes: 8 << 20,
	}
}

// Threads returns the effective parallelism.
func (o Options) Threads() int {
	if o.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return o.Parallelism
}

// String returns a formatted string representation of the options
func (o Options) String() string {
	var sb strings.Builder
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	addField("Path", o.Path)
	addField("Sync", fmt.Sprintf("%t", o.Sync))
	addField("WAL Disabled", fmt.Sprintf("%t", o.DisableWAL))
	addField("Parallelism", fmt.Sprintf("%d", o.Threads()))
	addField("Block Cache", fmt.Sprintf("%d bytes", o.BlockCacheBytes))
	addField("Compression", fmt.Sprintf("%t", o.Compression))
	addField("Capacity", fmt.Sprintf("%d bytes", o.CapacityBytes))
	return sb.String()
}
