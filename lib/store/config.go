package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/util"
)

// Variant selects the backend implementation.
type Variant string

const (
	VariantSingle  Variant = "single"
	VariantSharded Variant = "sharded"
	VariantCaching Variant = "caching"
)

// Config describes a backend. It is built once before Open and owned by the
// backend afterwards; nothing reads it from global state.
type Config struct {
	// Variant selects single, sharded or caching.
	Variant Variant
	// Engine selects the storage engine of every shard.
	Engine db.Implementation
	// Paths are the engine roots. Their order determines key placement and must
	// not change between runs. An empty list is only allowed for the maple engine
	// and means in-memory shards.
	Paths []string
	// StorageSizes is the per-path capacity in bytes (caching variant, 0 = unlimited).
	StorageSizes []uint64
	// NumShards is the number of engines of the sharded variant (0 = one per path).
	NumShards int
	// BlockCacheBytes is the block cache of every engine (single and sharded).
	BlockCacheBytes uint64
	// IndexMemoryBudget is split evenly into the block caches of the caching variant.
	IndexMemoryBudget uint64
	// DataCacheMemoryBudget bounds the value cache of the caching variant (0 = no cache).
	DataCacheMemoryBudget uint64
	// Sync forces an fsync after every write.
	Sync bool
	// DisableWAL trades crash durability for write throughput.
	DisableWAL bool
	// Compression enables engine block compression.
	Compression bool
	// Parallelism bounds the goroutines used to execute one batch (0 = NumCPU).
	Parallelism int
}

// DefaultConfig returns a single pebble engine at path.
func DefaultConfig(path string) Config {
	return Config{
		Variant:         VariantSingle,
		Engine:          db.ImplPebble,
		Paths:           []string{path},
		BlockCacheBytes: 8 << 20,
	}
}

// Validate checks the configuration and returns a ConfigError describing the
// first problem found.
func (c Config) Validate() error {
	switch c.Engine {
	case db.ImplPebble, db.ImplLevelDB, db.ImplMaple:
	default:
		return configErrorf("unknown engine %q", c.Engine)
	}

	if len(c.Paths) == 0 && c.Engine != db.ImplMaple {
		return configErrorf("at least one path is required for engine %s", c.Engine)
	}
	seen := make(map[string]bool, len(c.Paths))
	for i, p := range c.Paths {
		if strings.TrimSpace(p) == "" {
			return configErrorf("path %d is empty", i)
		}
		clean := filepath.Clean(p)
		if seen[clean] {
			return configErrorf("path %q is listed twice", p)
		}
		seen[clean] = true
	}

	if c.NumShards < 0 {
		return configErrorf("number of shards must not be negative")
	}
	if c.Parallelism < 0 {
		return configErrorf("parallelism must not be negative")
	}
	if c.Sync && c.DisableWAL {
		return configErrorf("sync and disabled WAL are mutually exclusive")
	}

	switch c.Variant {
	case VariantSingle:
		if len(c.Paths) > 1 {
			return configErrorf("single variant takes one path, got %d", len(c.Paths))
		}
	case VariantSharded:
		if c.NumShards > 0 && c.NumShards < len(c.Paths) {
			return configErrorf("%d shards cannot cover %d paths", c.NumShards, len(c.Paths))
		}
	case VariantCaching:
		if len(c.StorageSizes) != 0 && len(c.StorageSizes) != len(c.Paths) {
			return configErrorf("got %d storage sizes for %d paths", len(c.StorageSizes), len(c.Paths))
		}
		if len(c.Paths) == 0 {
			return configErrorf("caching variant requires at least one path")
		}
	default:
		return configErrorf("unknown variant %q", c.Variant)
	}
	return nil
}

// Shards returns the number of engines the configured variant opens.
func (c Config) Shards() int {
	switch c.Variant {
	case VariantSharded:
		if c.NumShards > 0 {
			return c.NumShards
		}
		if len(c.Paths) == 0 {
			return 1
		}
		return len(c.Paths)
	case VariantCaching:
		return len(c.Paths)
	default:
		return 1
	}
}

// ShardRoot returns the engine root of shard i. With one shard per path the
// path itself is the root, otherwise shard i lives in Paths[i mod len]/shard-<i>.
// An empty root means in-memory (maple only).
func (c Config) ShardRoot(i int) string {
	if len(c.Paths) == 0 {
		return ""
	}
	if c.Shards() == len(c.Paths) {
		return c.Paths[i]
	}
	return filepath.Join(c.Paths[i%len(c.Paths)], fmt.Sprintf("shard-%d", i))
}

// EngineOptions returns the engine options of shard i.
func (c Config) EngineOptions(i int) db.Options {
	opts := db.DefaultOptions(c.ShardRoot(i))
	opts.Sync = c.Sync
	opts.DisableWAL = c.DisableWAL
	opts.Compression = c.Compression
	if c.Parallelism > 0 {
		opts.Parallelism = c.Parallelism
	}

	switch c.Variant {
	case VariantCaching:
		opts.BlockCacheBytes = c.IndexMemoryBudget / uint64(c.Shards())
		if i < len(c.StorageSizes) {
			opts.CapacityBytes = c.StorageSizes[i]
		}
	default:
		if c.BlockCacheBytes > 0 {
			opts.BlockCacheBytes = c.BlockCacheBytes
		}
	}
	return opts
}

// String returns a formatted string representation of the config
func (c Config) String() string {
	var sb strings.Builder

	addSection := func(name string) {
		sb.WriteString(fmt.Sprintf("\n%s:\n", name))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}

	addSection("Backend")
	addField("Variant", string(c.Variant))
	addField("Engine", string(c.Engine))
	addField("Shards", fmt.Sprintf("%d", c.Shards()))
	addField("Parallelism", fmt.Sprintf("%d", c.Parallelism))

	addSection("Paths")
	for i := 0; i < c.Shards(); i++ {
		root := c.ShardRoot(i)
		if root == "" {
			root = "(in-memory)"
		}
		value := root
		if i < len(c.StorageSizes) && c.StorageSizes[i] > 0 {
			value += " (" + util.FormatBytes(c.StorageSizes[i]) + ")"
		}
		addField(fmt.Sprintf("Shard %d", i), value)
	}

	addSection("Memory")
	if c.Variant == VariantCaching {
		addField("Index Budget", util.FormatBytes(c.IndexMemoryBudget))
		addField("Data Cache Budget", util.FormatBytes(c.DataCacheMemoryBudget))
	} else {
		addField("Block Cache", util.FormatBytes(c.BlockCacheBytes))
	}

	addSection("Durability")
	addField("Sync", fmt.Sprintf("%t", c.Sync))
	addField("WAL Disabled", fmt.Sprintf("%t", c.DisableWAL))
	addField("Compression", fmt.Sprintf("%t", c.Compression))

	return sb.String()
}
