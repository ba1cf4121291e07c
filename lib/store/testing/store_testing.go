package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

// StoreFactory creates a fresh, empty store for one test
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the conformance suite every IStore backend must pass.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("GetMissing", func(t *testing.T) {
			testGetMissing(t, factory(t))
		})

		t.Run("PutIfCreate", func(t *testing.T) {
			testPutIfCreate(t, factory(t))
		})

		t.Run("PutIfUpdate", func(t *testing.T) {
			testPutIfUpdate(t, factory(t))
		})

		t.Run("DeleteIf", func(t *testing.T) {
			testDeleteIf(t, factory(t))
		})

		t.Run("PutAndDelete", func(t *testing.T) {
			testPutAndDelete(t, factory(t))
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory(t))
		})

		t.Run("ConcurrentCreate", func(t *testing.T) {
			testConcurrentCreate(t, factory(t))
		})

		t.Run("ConcurrentUpdate", func(t *testing.T) {
			testConcurrentUpdate(t, factory(t))
		})

		t.Run("CanceledContext", func(t *testing.T) {
			testCanceledContext(t, factory(t))
		})

		t.Run("DBInfo", func(t *testing.T) {
			testDBInfo(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testGetMissing(t *testing.T, s store.IStore) {
	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Errorf("Expected missing key to return loaded=false")
	}
}

func testPutIfCreate(t *testing.T, s store.IStore) {
	ctx := context.Background()

	version, err := s.PutIf(ctx, "lock/a/1", []byte("first"), db.VersionAbsent)
	if err != nil {
		t.Fatalf("PutIf(create) returned error: %v", err)
	}
	if version == db.VersionAbsent {
		t.Fatalf("PutIf(create) returned the absent version")
	}

	doc, ok, err := s.Get(ctx, "lock/a/1")
	if err != nil || !ok {
		t.Fatalf("Get after create = (%v, %v)", ok, err)
	}
	if string(doc.Value) != "first" || doc.Version != version {
		t.Errorf("Get = (%s, %d), want (first, %d)", doc.Value, doc.Version, version)
	}

	_, err = s.PutIf(ctx, "lock/a/1", []byte("second"), db.VersionAbsent)
	if !store.IsConditionFailed(err) {
		t.Errorf("Second create should fail with ConditionFailed, got %v", err)
	}
}

func testPutIfUpdate(t *testing.T, s store.IStore) {
	ctx := context.Background()

	v1, err := s.PutIf(ctx, "key", []byte("v1"), db.VersionAbsent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	v2, err := s.PutIf(ctx, "key", []byte("v2"), v1)
	if err != nil {
		t.Fatalf("update with current version: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("Versions must grow: v1=%d v2=%d", v1, v2)
	}

	// the old version is now stale
	if _, err = s.PutIf(ctx, "key", []byte("v3"), v1); !store.IsConditionFailed(err) {
		t.Errorf("Update with stale version should fail with ConditionFailed, got %v", err)
	}

	doc, _, _ := s.Get(ctx, "key")
	if string(doc.Value) != "v2" {
		t.Errorf("Failed update must not change the value, got %s", doc.Value)
	}

	// updating a missing key must not create it
	if _, err = s.PutIf(ctx, "missing", []byte("x"), v2); !store.IsConditionFailed(err) {
		t.Errorf("Update of missing key should fail with ConditionFailed, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Errorf("Failed update must not create the key")
	}
}

func testDeleteIf(t *testing.T, s store.IStore) {
	ctx := context.Background()

	version, err := s.PutIf(ctx, "key", []byte("value"), db.VersionAbsent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err = s.DeleteIf(ctx, "key", version+1000); !store.IsConditionFailed(err) {
		t.Errorf("DeleteIf with wrong version should fail with ConditionFailed, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "key"); !ok {
		t.Fatalf("Failed DeleteIf must keep the key")
	}

	if err = s.DeleteIf(ctx, "key", version); err != nil {
		t.Fatalf("DeleteIf with right version: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "key"); ok {
		t.Errorf("Key must be gone after DeleteIf")
	}

	if err = s.DeleteIf(ctx, "key", version); !store.IsConditionFailed(err) {
		t.Errorf("DeleteIf on missing key should fail with ConditionFailed, got %v", err)
	}

	// after delete the key can be created again
	if _, err = s.PutIf(ctx, "key", []byte("again"), db.VersionAbsent); err != nil {
		t.Errorf("Create after delete: %v", err)
	}
}

func testPutAndDelete(t *testing.T, s store.IStore) {
	ctx := context.Background()

	v1, err := s.Put(ctx, "plain", []byte("a"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	v2, err := s.Put(ctx, "plain", []byte("b"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("Versions must grow: v1=%d v2=%d", v1, v2)
	}

	if err = s.Delete(ctx, "plain"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err = s.Delete(ctx, "plain"); err != nil {
		t.Errorf("Deleting a missing key must not fail: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "plain"); ok {
		t.Errorf("Key must be gone after Delete")
	}
}

func testScan(t *testing.T, s store.IStore) {
	ctx := context.Background()

	for _, key := range []string{"lock/b/2", "lock/a/1", "lock/b/1", "lockx/1"} {
		if _, err := s.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	docs, err := s.Scan(ctx, "lock/b/", 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Scan(lock/b/) returned %d documents, want 2", len(docs))
	}
	if docs[0].Key != "lock/b/1" || docs[1].Key != "lock/b/2" {
		t.Errorf("Scan must be ordered by key, got %s, %s", docs[0].Key, docs[1].Key)
	}
	if string(docs[0].Value) != "lock/b/1" || docs[0].Version == 0 {
		t.Errorf("Scan must return value and version, got (%s, %d)", docs[0].Value, docs[0].Version)
	}

	docs, err = s.Scan(ctx, "lock/", 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Scan with limit returned %d documents, want 2", len(docs))
	}
}

// testConcurrentCreate lets many goroutines race to create the same key.
func testConcurrentCreate(t *testing.T, s store.IStore) {
	const writers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.PutIf(context.Background(), "contended", []byte(fmt.Sprintf("writer-%d", i)), db.VersionAbsent)
			if err == nil {
				winners.Add(1)
			} else if !store.IsConditionFailed(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners.Load())
	}
}

// testConcurrentUpdate runs read-modify-write cycles from many goroutines.
// Every successful update must be based on the version it read, so no increment is lost.
func testConcurrentUpdate(t *testing.T, s store.IStore) {
	ctx := context.Background()
	if _, err := s.PutIf(ctx, "counter", []byte("0"), db.VersionAbsent); err != nil {
		t.Fatalf("create: %v", err)
	}

	const (
		workers   = 8
		perWorker = 20
	)
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					doc, _, err := s.Get(ctx, "counter")
					if err != nil {
						t.Errorf("Get: %v", err)
						return
					}
					var n int
					_, _ = fmt.Sscanf(string(doc.Value), "%d", &n)
					_, err = s.PutIf(ctx, "counter", []byte(fmt.Sprintf("%d", n+1)), doc.Version)
					if err == nil {
						successes.Add(1)
						break
					}
					if !store.IsConditionFailed(err) {
						t.Errorf("PutIf: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	doc, _, _ := s.Get(ctx, "counter")
	if string(doc.Value) != fmt.Sprintf("%d", workers*perWorker) {
		t.Errorf("Lost updates: counter=%s, successes=%d", doc.Value, successes.Load())
	}
}

func testCanceledContext(t *testing.T, s store.IStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.PutIf(ctx, "canceled", []byte("x"), db.VersionAbsent); err == nil {
		t.Errorf("PutIf with canceled context should fail")
	} else if store.IsConditionFailed(err) {
		t.Errorf("Canceled context must not be reported as ConditionFailed")
	}
}

func testDBInfo(t *testing.T, s store.IStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Put(ctx, fmt.Sprintf("info-%d", i), []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	info, err := s.GetDBInfo(ctx)
	if err != nil {
		t.Fatalf("GetDBInfo: %v", err)
	}
	if info.Entries != 3 {
		t.Errorf("Expected 3 entries, got %d", info.Entries)
	}
}
