package db

import (
	"sync/atomic"
)

// OwnedBuffer is a value returned by an engine whose memory may belong to the
// engine (e.g. a pinned block cache page). Exactly one party owns it at a time;
// ownership moves from engine to caller when Get returns. The owner must call
// Release exactly once when done with the bytes. Release is the only path that
// hands the memory back to the engine.
type OwnedBuffer struct {
	data     []byte
	size     int
	release  func()
	released atomic.Bool
}

// NewOwnedBuffer wraps data. release is invoked once by the first Release call
// and may be nil if the bytes are plain heap memory.
func NewOwnedBuffer(data []byte, release func()) *OwnedBuffer {
	return &OwnedBuffer{
		data:    data,
		size:    len(data),
		release: release,
	}
}

// CopyBuffer returns a heap-backed buffer holding a private copy of data.
func CopyBuffer(data []byte) *OwnedBuffer {
	cp := make([]byte, len(data))
	copy(cp, data)
	return NewOwnedBuffer(cp, nil)
}

// Bytes returns the buffered value. The slice is only valid until Release;
// after Release it returns nil.
func (b *OwnedBuffer) Bytes() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.data
}

// Len returns the length of the value (also after Release).
func (b *OwnedBuffer) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Release hands the buffer back to its allocator. Only the first call has an
// effect, so a release on an error path cannot turn into a double free.
// It reports whether this call performed the release.
func (b *OwnedBuffer) Release() bool {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return false
	}
	if b.release != nil {
		b.release()
	}
	b.data = nil
	return true
}

// Released reports whether Release has been called.
func (b *OwnedBuffer) Released() bool {
	return b == nil || b.released.Load()
}
