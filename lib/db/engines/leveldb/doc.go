// Package leveldb implements db.KVDB on top of goleveldb.
//
// goleveldb returns private copies from Get, so buffers of this engine carry no
// release hook. Record count and data size are maintained like in the pebble
// engine (probe before write under a striped key lock, HCDKV-STATS sidecar on
// Close). If the sidecar is missing for an existing database the counters are
// rebuilt by a full scan on open.
package leveldb
