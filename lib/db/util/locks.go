package util

import (
	"sync"
)

// StripedLocks serialises operations on the same key without a lock per key.
// Two keys may share a stripe, which only costs concurrency.
type StripedLocks struct {
	stripes []sync.Mutex
}

// NewStripedLocks creates n stripes (at least one).
func NewStripedLocks(n int) *StripedLocks {
	if n < 1 {
		n = 1
	}
	return &StripedLocks{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe of key and returns the matching unlock function.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *StripedLocks) Lock(key []byte) (unlock func()) {
	m := &l.stripes[HashKey(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
