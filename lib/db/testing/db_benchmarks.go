package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/hcdkv/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	open := func(b *testing.B) db.KVDB {
		return mustOpen(b, factory, db.DefaultOptions(b.TempDir()))
	}

	b.Run(name+"/Put", func(b *testing.B) {
		benchmarkPut(b, open(b))
	})

	b.Run(name+"/PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, open(b))
	})

	b.Run(name+"/PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, open(b))
	})

	b.Run(name+"/Get", func(b *testing.B) {
		benchmarkGet(b, open(b))
	})

	b.Run(name+"/Get(miss)", func(b *testing.B) {
		benchmarkGetMiss(b, open(b))
	})

	b.Run(name+"/Delete", func(b *testing.B) {
		benchmarkDelete(b, open(b))
	})

	b.Run(name+"/MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, open(b))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation
func benchmarkPut(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut)

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := []byte(fmt.Sprintf("bench-key-%d", i))
			value := []byte(fmt.Sprintf("bench-value-%d", i))
			_ = database.Put(key, value)
		}
	})
}

// Benchmark for Put operation with existing keys
func benchmarkPutExisting(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		_ = database.Put([]byte(fmt.Sprintf("bench-key-%d", i)), []byte("initial"))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("bench-key-%d", counter%numKeys))
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			_ = database.Put(key, value)
			counter++
		}
	})
}

// Benchmark for Put operation with 1 MiB values
func benchmarkPutLargeValue(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut)

	largeValue := make([]byte, 1<<20)
	var counter atomic.Int64

	b.SetBytes(int64(len(largeValue)))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := []byte(fmt.Sprintf("large-key-%d", counter.Add(1)%64))
			_ = database.Put(key, largeValue)
		}
	})
}

// Parallel benchmarking for Get operation, every hit releases its buffer
func benchmarkGet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	const numKeys = 10000
	for i := 0; i < numKeys; i++ {
		_ = database.Put([]byte(fmt.Sprintf("bench-key-%d", i)), []byte(fmt.Sprintf("bench-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			buf, err := database.Get([]byte(fmt.Sprintf("bench-key-%d", r.Intn(numKeys))))
			if err == nil {
				buf.Release()
			}
		}
	})
}

func benchmarkGetMiss(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeatureGet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = database.Get([]byte(fmt.Sprintf("missing-%d", counter)))
			counter++
		}
	})
}

// Parallel benchmarking for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureDelete)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}
	for i := 0; i < numKeys; i++ {
		_ = database.Put([]byte(fmt.Sprintf("bench-key-%d", i)), []byte("v"))
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1) % int64(numKeys)
			_ = database.Delete([]byte(fmt.Sprintf("bench-key-%d", i)))
		}
	})
}

// Mixed workload: 80% reads, 15% writes, 5% deletes
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		closeDB(b, database)
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	const numKeys = 10000
	for i := 0; i < numKeys; i++ {
		_ = database.Put([]byte(fmt.Sprintf("bench-key-%d", i)), []byte(fmt.Sprintf("bench-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := []byte(fmt.Sprintf("bench-key-%d", r.Intn(numKeys)))
			switch op := r.Intn(100); {
			case op < 80:
				if buf, err := database.Get(key); err == nil {
					buf.Release()
				}
			case op < 95:
				_ = database.Put(key, []byte("updated"))
			default:
				_ = database.Delete(key)
			}
		}
	})
}
