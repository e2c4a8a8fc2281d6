package util

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Counters tracks the logical content of an engine. All methods are lock-free
// and safe for concurrent use. Engines update the counters next to (not inside)
// their own write path, so a reader running concurrently with writers may see a
// value that is off by the in-flight writes. Readers always see a value clamped at zero.
type Counters struct {
	records    *xsync.Counter
	dataBytes  *xsync.Counter
	readBytes  *xsync.Counter
	writeBytes *xsync.Counter
}

// CounterSnapshot is a copy of all counters at one instant.
type CounterSnapshot struct {
	Records    uint64 `json:"records"`
	DataBytes  uint64 `json:"data_bytes"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{
		records:    xsync.NewCounter(),
		dataBytes:  xsync.NewCounter(),
		readBytes:  xsync.NewCounter(),
		writeBytes: xsync.NewCounter(),
	}
}

// Restore seeds the counters, e.g. from a sidecar file.
func (c *Counters) Restore(s CounterSnapshot) {
	c.records.Reset()
	c.dataBytes.Reset()
	c.readBytes.Reset()
	c.writeBytes.Reset()
	c.records.Add(int64(s.Records))
	c.dataBytes.Add(int64(s.DataBytes))
	c.readBytes.Add(int64(s.ReadBytes))
	c.writeBytes.Add(int64(s.WriteBytes))
}

// OnPut accounts a write of newSize bytes. oldSize is the size of the value
// that was overwritten, or -1 if the key did not exist before.
func (c *Counters) OnPut(oldSize, newSize int) {
	if oldSize < 0 {
		c.records.Inc()
		c.dataBytes.Add(int64(newSize))
	} else {
		c.dataBytes.Add(int64(newSize - oldSize))
	}
	c.writeBytes.Add(int64(newSize))
}

// OnDelete accounts the removal of a value of the given size.
func (c *Counters) OnDelete(size int) {
	c.records.Dec()
	c.dataBytes.Add(-int64(size))
}

// OnRead accounts a successful read of size bytes.
func (c *Counters) OnRead(size int) {
	c.readBytes.Add(int64(size))
}

// Records returns the approximate number of records.
func (c *Counters) Records() uint64 {
	return clamp(c.records.Value())
}

// DataBytes returns the approximate logical data size.
func (c *Counters) DataBytes() uint64 {
	return clamp(c.dataBytes.Value())
}

// Snapshot returns all counters.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Records:    c.Records(),
		DataBytes:  c.DataBytes(),
		ReadBytes:  clamp(c.readBytes.Value()),
		WriteBytes: clamp(c.writeBytes.Value()),
	}
}

func clamp(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
