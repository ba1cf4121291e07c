package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("PutIf", func(t *testing.T) {
			testPutIf(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("DeleteIf", func(t *testing.T) {
			testDeleteIf(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("ConcurrentPutIf", func(t *testing.T) {
			testConcurrentPutIf(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Put(testKey, testValue1, 1)

	doc, exists := database.Get(testKey)
	if !exists {
		t.Fatalf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(doc.Value, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, doc.Value)
	}
	if doc.Version != 1 {
		t.Errorf("Expected version 1, got %d", doc.Version)
	}

	database.Put(testKey, testValue2, 2)

	doc, exists = database.Get(testKey)
	if !exists {
		t.Fatalf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(doc.Value, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, doc.Value)
	}
	if doc.Version != 2 {
		t.Errorf("Expected version 2, got %d", doc.Version)
	}

	if _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// Get must return a copy
	doc.Value[0] = 'X'
	original, _ := database.Get(testKey)
	if bytes.Equal(doc.Value, original.Value) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	if database.WriteIdx() != 2 {
		t.Errorf("Expected write index 2, got %d", database.WriteIdx())
	}
}

func testPutIf(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePutIf|db.FeatureGet)

	key := "cas-key"

	// create: key must be absent
	version, ok := database.PutIf(key, []byte("v1"), 1, db.VersionAbsent)
	if !ok || version != 1 {
		t.Fatalf("PutIf(create) = (%d, %v), want (1, true)", version, ok)
	}

	// create again must fail and report the stored version
	version, ok = database.PutIf(key, []byte("v-other"), 2, db.VersionAbsent)
	if ok {
		t.Fatalf("PutIf(create) on existing key should fail")
	}
	if version != 1 {
		t.Errorf("Expected failed PutIf to report version 1, got %d", version)
	}

	// update with the wrong version must fail
	if _, ok = database.PutIf(key, []byte("v-other"), 3, 42); ok {
		t.Fatalf("PutIf with wrong version should fail")
	}

	// update with the right version succeeds
	version, ok = database.PutIf(key, []byte("v2"), 4, 1)
	if !ok || version != 4 {
		t.Fatalf("PutIf(update) = (%d, %v), want (4, true)", version, ok)
	}

	doc, _ := database.Get(key)
	if string(doc.Value) != "v2" || doc.Version != 4 {
		t.Errorf("Get = (%s, %d), want (v2, 4)", doc.Value, doc.Version)
	}

	// an update for a missing key must not create it
	if _, ok = database.PutIf("missing", []byte("x"), 5, 7); ok {
		t.Errorf("PutIf with a version on a missing key should fail")
	}
	if _, exists := database.Get("missing"); exists {
		t.Errorf("Failed PutIf must not create the key")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureDelete|db.FeatureGet)

	database.Put("delete-key", []byte("value"), 1)
	database.Delete("delete-key", 2)

	if _, exists := database.Get("delete-key"); exists {
		t.Errorf("Expected key to be gone after Delete")
	}

	// deleting a missing key is a no-op
	database.Delete("never-set", 3)
	if _, exists := database.Get("never-set"); exists {
		t.Errorf("Delete must not create keys")
	}

	// a deleted key can be created again with a new version
	version, ok := database.PutIf("delete-key", []byte("again"), 4, db.VersionAbsent)
	if !ok || version != 4 {
		t.Errorf("PutIf after Delete = (%d, %v), want (4, true)", version, ok)
	}
}

func testDeleteIf(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureDeleteIf|db.FeatureGet)

	database.Put("key", []byte("value"), 5)

	version, ok := database.DeleteIf("key", 6, 4)
	if ok {
		t.Fatalf("DeleteIf with wrong version should fail")
	}
	if version != 5 {
		t.Errorf("Expected failed DeleteIf to report version 5, got %d", version)
	}
	if _, exists := database.Get("key"); !exists {
		t.Fatalf("Failed DeleteIf must keep the key")
	}

	if _, ok = database.DeleteIf("key", 7, 5); !ok {
		t.Fatalf("DeleteIf with right version should succeed")
	}
	if _, exists := database.Get("key"); exists {
		t.Errorf("Expected key to be gone after DeleteIf")
	}

	if _, ok = database.DeleteIf("key", 8, 5); ok {
		t.Errorf("DeleteIf on a missing key should fail")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	database.Put("stale", []byte("new"), 10)
	database.Put("stale", []byte("old"), 5)

	doc, _ := database.Get("stale")
	if string(doc.Value) != "new" || doc.Version != 10 {
		t.Errorf("Stale write was applied: got (%s, %d)", doc.Value, doc.Version)
	}

	database.SetWriteIdx(3)
	if database.WriteIdx() != 10 {
		t.Errorf("Write index must be monotonic, got %d", database.WriteIdx())
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	var idx uint64
	for _, key := range []string{"lock/b/2", "lock/a/1", "lock/b/1", "other/x", "lock/a/2"} {
		idx++
		database.Put(key, []byte(key), idx)
	}

	docs := database.Scan("lock/b/", 0)
	if len(docs) != 2 {
		t.Fatalf("Scan(lock/b/) returned %d documents, want 2", len(docs))
	}
	if docs[0].Key != "lock/b/1" || docs[1].Key != "lock/b/2" {
		t.Errorf("Scan must be ordered by key, got %s, %s", docs[0].Key, docs[1].Key)
	}

	if docs = database.Scan("lock/", 3); len(docs) != 3 {
		t.Errorf("Scan with limit 3 returned %d documents", len(docs))
	}

	if docs = database.Scan("", 0); len(docs) != 5 {
		t.Errorf("Scan of everything returned %d documents, want 5", len(docs))
	}

	if docs = database.Scan("none/", 0); len(docs) != 0 {
		t.Errorf("Scan of unknown prefix returned %d documents", len(docs))
	}
}

// testConcurrentPutIf races many writers on the same expected version.
// Exactly one of them may win.
func testConcurrentPutIf(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePutIf|db.FeatureGet)

	const writers = 64
	var (
		wg      sync.WaitGroup
		index   atomic.Uint64
		winners atomic.Int32
		start   = make(chan struct{})
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if _, ok := database.PutIf("contended", []byte(fmt.Sprintf("writer-%d", i)), index.Add(1), db.VersionAbsent); ok {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners.Load())
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		database.Put(key, value, uint64(i+1))
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		doc, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if string(doc.Value) != fmt.Sprintf("save-load-test-value-%d", i) {
			t.Errorf("Value mismatch for key %s: got %s", key, doc.Value)
		}
		if doc.Version != uint64(i+1) {
			t.Errorf("Version mismatch for key %s: expected %d, got %d", key, i+1, doc.Version)
		}
	}

	if database2.WriteIdx() != database.WriteIdx() {
		t.Errorf("Write index not restored: expected %d, got %d", database.WriteIdx(), database2.WriteIdx())
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load to reject data without the magic header")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	database.Put("", []byte("value for empty key"), 1)
	if doc, exists := database.Get(""); !exists || string(doc.Value) != "value for empty key" {
		t.Errorf("Empty key not stored correctly")
	}

	database.Put("nil-value-key", nil, 2)
	if doc, exists := database.Get("nil-value-key"); !exists {
		t.Errorf("Key for nil value not found after Put")
	} else if len(doc.Value) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", doc.Value)
	}

	largeValue := make([]byte, 4*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	database.Put("large-value-key", largeValue, 3)
	if doc, exists := database.Get("large-value-key"); !exists || !bytes.Equal(doc.Value, largeValue) {
		t.Errorf("Large value not stored correctly")
	}
}
