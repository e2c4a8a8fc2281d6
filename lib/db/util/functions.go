package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashKey returns the 64-bit xxhash of a key. The hash is unseeded on purpose:
// it is persisted implicitly through shard placement and must be identical
// across processes and restarts.
func HashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// HashString is HashKey for string keys (no allocation).
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// ShardIndex maps a key to one of n shards. n must be > 0.
//
// Thread-safety: This function is pure and can be called concurrently.
func ShardIndex(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	return int(HashKey(key) % uint64(n))
}

// --------------------------------------------------------------------------
// Parsing
// --------------------------------------------------------------------------

// ParseSize converts a size string like "1345", "64K", "512m" or "2G" to bytes.
// Suffixes are powers of 1024 and case-insensitive.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid size: empty string")
	}

	multiplier := uint64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1 << 10
	case 'm', 'M':
		multiplier = 1 << 20
	case 'g', 'G':
		multiplier = 1 << 30
	}
	if multiplier != 1 {
		s = s[:len(s)-1]
	}

	val, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if val > (^uint64(0))/multiplier {
		return 0, fmt.Errorf("invalid size %q: overflow", s)
	}
	return val * multiplier, nil
}

// SplitPathList splits a comma-separated list of directories.
// Empty elements and surrounding whitespace are dropped, order is preserved.
func SplitPathList(list string) []string {
	var paths []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// FormatBytes renders a byte count with a binary unit (e.g. "1.50 MiB").
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
