package testing

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a KVDB implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("PutIf(contended)", func(b *testing.B) {
		benchmarkPutIfContended(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("Save", func(b *testing.B) {
		benchmarkSave(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	var index atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Put(fmt.Sprintf("key-%d", counter%1000), []byte("value"), index.Add(1))
			counter++
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	for i := 0; i < 1000; i++ {
		database.Put(fmt.Sprintf("key-%d", i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(fmt.Sprintf("key-%d", counter%1000))
			counter++
		}
	})
}

// benchmarkPutIfContended simulates many clients fighting over few lock documents
func benchmarkPutIfContended(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePutIf|db.FeatureGet)

	var index atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("lock-%d", counter%8)
			doc, _ := database.Get(key)
			database.PutIf(key, []byte("owner"), index.Add(1), doc.Version)
			counter++
		}
	})
}

func benchmarkScan(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureScan)

	for i := 0; i < 10000; i++ {
		database.Put(fmt.Sprintf("lock/c%d/%d", i%10, i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Scan(fmt.Sprintf("lock/c%d/", i%10), 0)
	}
}

func benchmarkSave(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureSave)

	for i := 0; i < 10000; i++ {
		database.Put(fmt.Sprintf("key-%d", i), []byte("value"), uint64(i+1))
	}

	var buf bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := database.Save(&buf); err != nil {
			b.Fatal(err)
		}
	}
}
