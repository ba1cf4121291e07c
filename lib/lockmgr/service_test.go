package lockmgr

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lease = 10 * time.Minute

var (
	userA     = Requester{UserID: "user-a", Email: "a@example.com", DisplayName: "Alice", TabID: "tab1"}
	userATab2 = Requester{UserID: "user-a", Email: "a@example.com", DisplayName: "Alice", TabID: "tab2"}
	userB     = Requester{UserID: "user-b", Email: "b@example.com", DisplayName: "Bob", TabID: "tab9"}
)

func newMemoryStore() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
}

func newTestService(t *testing.T, opts *Options) (ILockService, *ManualClock, store.IStore) {
	t.Helper()
	clock := NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.Clock = clock
	st := newMemoryStore()
	return NewLockService(st, opts), clock, st
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)
	const coll, res = "magazine_sections", "sec-42"

	// 1. free resource is granted for the lease
	acq, err := svc.AcquireLock(ctx, coll, res, userA, lease)
	require.NoError(t, err)
	assert.True(t, acq.Granted)
	assert.Equal(t, clock.Now().Add(lease), acq.ExpiresAt)

	// 2. another user gets a conflict with owner context
	acq, err = svc.AcquireLock(ctx, coll, res, userB, lease)
	require.NoError(t, err)
	assert.False(t, acq.Granted)
	assert.Equal(t, OutcomeConflict, acq.Outcome)
	assert.Equal(t, "user-a", acq.Holder.UserID)
	assert.Equal(t, "Alice", acq.Holder.DisplayName)
	assert.False(t, acq.IsMultiTabConflict)
	assert.False(t, acq.Transferable)

	// 3. same user in another tab gets a transferable multi tab conflict
	acq, err = svc.AcquireLock(ctx, coll, res, userATab2, lease)
	require.NoError(t, err)
	assert.False(t, acq.Granted)
	assert.True(t, acq.IsMultiTabConflict)
	assert.True(t, acq.Transferable)

	// 4. transfer to tab2, roles are reversed afterwards
	tr, err := svc.TransferLock(ctx, coll, res, userATab2, lease)
	require.NoError(t, err)
	assert.True(t, tr.Transferred)

	status, err := svc.GetLockStatus(ctx, coll, res, userATab2)
	require.NoError(t, err)
	assert.Equal(t, "tab2", status.Holder.TabID)
	assert.True(t, status.HasLock)

	acq, err = svc.AcquireLock(ctx, coll, res, userA, lease)
	require.NoError(t, err)
	assert.False(t, acq.Granted)
	assert.True(t, acq.IsMultiTabConflict)

	// 5. after expiry anyone can acquire
	clock.Advance(lease + time.Second)
	acq, err = svc.AcquireLock(ctx, coll, res, userB, lease)
	require.NoError(t, err)
	assert.True(t, acq.Granted)
	assert.Equal(t, "user-b", acq.Holder.UserID)
}

func TestScenarioLockGroup(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Groups = NewGroupResolver(GroupMapping{
		"magazine_issues": {"basic-info": "issue-metadata", "cover-config": "issue-metadata"},
	})
	svc, _, _ := newTestService(t, opts)

	basic := userA
	basic.LockGroup = "basic-info"
	acq, err := svc.AcquireLock(ctx, "magazine_issues", "issue-7", basic, lease)
	require.NoError(t, err)
	require.True(t, acq.Granted)
	assert.Equal(t, "issue-7#issue-metadata", acq.ResourceKey)

	cover := userB
	cover.LockGroup = "cover-config"
	status, err := svc.GetLockStatus(ctx, "magazine_issues", "issue-7", cover)
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.Equal(t, "user-a", status.Holder.UserID)
	assert.False(t, status.CanEdit)

	// the bare resource id is a separate lock
	bare, err := svc.GetLockStatus(ctx, "magazine_issues", "issue-7", userB)
	require.NoError(t, err)
	assert.False(t, bare.IsLocked)
	assert.Equal(t, "issue-7", bare.ResourceKey)

	// a different issue is not affected
	status, err = svc.GetLockStatus(ctx, "magazine_issues", "issue-8", cover)
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
}

func TestGroupedResourcesShareStatus(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Groups = NewGroupResolver(GroupMapping{"cms_sections": {"hero": "homepage", "about": "homepage"}})
	svc, _, _ := newTestService(t, opts)

	_, err := svc.AcquireLock(ctx, "cms_sections", "hero", userA, lease)
	require.NoError(t, err)

	hero, err := svc.GetLockStatus(ctx, "cms_sections", "hero", userB)
	require.NoError(t, err)
	about, err := svc.GetLockStatus(ctx, "cms_sections", "about", userB)
	require.NoError(t, err)

	assert.Equal(t, hero.IsLocked, about.IsLocked)
	assert.Equal(t, hero.Holder, about.Holder)
	assert.True(t, about.IsLocked)

	acq, err := svc.AcquireLock(ctx, "cms_sections", "about", userB, lease)
	require.NoError(t, err)
	assert.False(t, acq.Granted)
}

func TestConcurrentAcquireGrantsExactlyOne(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	const contenders = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []string
		start   = make(chan struct{})
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Requester{UserID: fmt.Sprintf("user-%d", i), TabID: "tab"}
			<-start
			res, err := svc.AcquireLock(ctx, "docs", "contended", req, lease)
			if !assert.NoError(t, err) {
				return
			}
			if res.Granted {
				mu.Lock()
				granted = append(granted, req.UserID)
				mu.Unlock()
			} else {
				assert.Equal(t, OutcomeConflict, res.Outcome)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, granted, 1)
	status, err := svc.GetLockStatus(ctx, "docs", "contended", Requester{UserID: "observer"})
	require.NoError(t, err)
	assert.Equal(t, granted[0], status.Holder.UserID)
}

func TestReacquireRefreshesLease(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)

	_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	acq, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)
	assert.True(t, acq.Granted)
	assert.Equal(t, clock.Now().Add(lease), acq.ExpiresAt)
}

func TestExtendLock(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)

	ext, err := svc.ExtendLock(ctx, "c", "r", userA, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, ext.Outcome)

	_, err = svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)

	// fresh lease, not additive
	clock.Advance(time.Minute)
	ext, err = svc.ExtendLock(ctx, "c", "r", userA, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ext.Extended)
	assert.Equal(t, clock.Now().Add(5*time.Minute), ext.ExpiresAt)

	ext, err = svc.ExtendLock(ctx, "c", "r", userATab2, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ext.Extended)
	assert.Equal(t, OutcomeNotOwner, ext.Outcome)

	ext, err = svc.ExtendLock(ctx, "c", "r", userB, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotOwner, ext.Outcome)

	clock.Advance(6 * time.Minute)
	ext, err = svc.ExtendLock(ctx, "c", "r", userA, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, ext.Outcome)

	_, err = svc.ExtendLock(ctx, "c", "r", userA, 0)
	assert.True(t, IsValidationError(err))
}

func TestReleaseLock(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)

	rel, err := svc.ReleaseLock(ctx, "c", "r", userA, "nothing to do")
	require.NoError(t, err)
	assert.False(t, rel.Released)
	assert.Equal(t, OutcomeNotFound, rel.Outcome)
	assert.Equal(t, "lock is already free", rel.Message)

	_, err = svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)

	rel, err = svc.ReleaseLock(ctx, "c", "r", userB, "")
	require.NoError(t, err)
	assert.False(t, rel.Released)
	assert.Equal(t, OutcomeNotOwner, rel.Outcome)

	// stale tab of the owner
	rel, err = svc.ReleaseLock(ctx, "c", "r", userATab2, "")
	require.NoError(t, err)
	assert.False(t, rel.Released)

	rel, err = svc.ReleaseLock(ctx, "c", "r", userA, "done")
	require.NoError(t, err)
	assert.True(t, rel.Released)

	// releasing twice is idempotent
	rel, err = svc.ReleaseLock(ctx, "c", "r", userA, "done")
	require.NoError(t, err)
	assert.False(t, rel.Released)

	// anyone may clean up an expired lock
	_, err = svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)
	clock.Advance(lease)
	rel, err = svc.ReleaseLock(ctx, "c", "r", userB, "cleanup")
	require.NoError(t, err)
	assert.True(t, rel.Released)
	assert.Equal(t, OutcomeExpired, rel.Outcome)
}

func TestStatusInvariant(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)

	check := func(req Requester) {
		status, err := svc.GetLockStatus(ctx, "c", "r", req)
		require.NoError(t, err)
		if !status.IsLocked {
			assert.True(t, status.CanEdit, "unlocked resource must be editable for %s", req.UserID)
		}
	}

	for _, req := range []Requester{userA, userATab2, userB} {
		check(req)
	}
	_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)

	status, err := svc.GetLockStatus(ctx, "c", "r", userA)
	require.NoError(t, err)
	assert.True(t, status.HasLock)
	assert.True(t, status.CanEdit)

	status, err = svc.GetLockStatus(ctx, "c", "r", userATab2)
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.False(t, status.HasLock)

	clock.Advance(lease)
	for _, req := range []Requester{userA, userATab2, userB} {
		check(req)
	}
}

func TestTransferPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("FreeLock", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)
		tr, err := svc.TransferLock(ctx, "c", "r", userA, lease)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, tr.Outcome)
	})

	t.Run("OtherUser", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)
		_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
		require.NoError(t, err)
		tr, err := svc.TransferLock(ctx, "c", "r", userB, lease)
		require.NoError(t, err)
		assert.False(t, tr.Transferred)
		assert.Equal(t, OutcomeNotOwner, tr.Outcome)
	})

	t.Run("NotTransferable", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Transferable = false
		svc, _, _ := newTestService(t, opts)
		_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
		require.NoError(t, err)

		acq, err := svc.AcquireLock(ctx, "c", "r", userATab2, lease)
		require.NoError(t, err)
		assert.True(t, acq.IsMultiTabConflict)
		assert.False(t, acq.Transferable)

		tr, err := svc.TransferLock(ctx, "c", "r", userATab2, lease)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, tr.Outcome)
	})

	t.Run("Grace", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TransferGrace = 2 * time.Minute
		svc, clock, _ := newTestService(t, opts)
		_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
		require.NoError(t, err)

		tr, err := svc.TransferLock(ctx, "c", "r", userATab2, lease)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, tr.Outcome, "holder renewed within the grace period")

		clock.Advance(3 * time.Minute)
		tr, err = svc.TransferLock(ctx, "c", "r", userATab2, lease)
		require.NoError(t, err)
		assert.True(t, tr.Transferred)

		// the new holder just renewed, so the old tab cannot take it straight back
		tr, err = svc.TransferLock(ctx, "c", "r", userA, lease)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, tr.Outcome)
	})
}

// After a transfer the tab that lost the lock must not touch it, with or without its tab id.
func TestStaleTabAfterTransfer(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	_, err := svc.AcquireLock(ctx, "c", "r", userA, lease)
	require.NoError(t, err)
	tr, err := svc.TransferLock(ctx, "c", "r", userATab2, lease)
	require.NoError(t, err)
	require.True(t, tr.Transferred)

	rel, err := svc.ReleaseLock(ctx, "c", "r", userA, "tab closed")
	require.NoError(t, err)
	assert.False(t, rel.Released)
	assert.Equal(t, OutcomeNotOwner, rel.Outcome)

	ext, err := svc.ExtendLock(ctx, "c", "r", userA, time.Minute)
	require.NoError(t, err)
	assert.False(t, ext.Extended)

	noTab := userA
	noTab.TabID = ""
	_, err = svc.ReleaseLock(ctx, "c", "r", noTab, "tab closed")
	assert.True(t, IsValidationError(err))
	_, err = svc.ExtendLock(ctx, "c", "r", noTab, time.Minute)
	assert.True(t, IsValidationError(err))

	status, err := svc.GetLockStatus(ctx, "c", "r", noTab)
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.False(t, status.HasLock, "a caller without tab never holds the lock")

	status, err = svc.GetLockStatus(ctx, "c", "r", userATab2)
	require.NoError(t, err)
	assert.True(t, status.HasLock)
	assert.Equal(t, "tab2", status.Holder.TabID)
}

func TestListLocks(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(t, nil)

	_, err := svc.AcquireLock(ctx, "issues", "a", userA, time.Minute)
	require.NoError(t, err)
	_, err = svc.AcquireLock(ctx, "issues", "b", userB, lease)
	require.NoError(t, err)
	_, err = svc.AcquireLock(ctx, "other", "c", userB, lease)
	require.NoError(t, err)

	locks, err := svc.ListLocks(ctx, "issues")
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, "a", locks[0].ResourceKey)
	assert.NotZero(t, locks[0].Version)

	clock.Advance(2 * time.Minute)
	locks, err = svc.ListLocks(ctx, "issues")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "user-b", locks[0].OwnerUserID)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	noTab := userA
	noTab.TabID = ""

	tests := []struct {
		name string
		call func() error
	}{
		{"EmptyCollection", func() error { _, err := svc.AcquireLock(ctx, "", "r", userA, lease); return err }},
		{"SlashInCollection", func() error { _, err := svc.AcquireLock(ctx, "a/b", "r", userA, lease); return err }},
		{"EmptyResource", func() error { _, err := svc.AcquireLock(ctx, "c", " ", userA, lease); return err }},
		{"MissingUser", func() error { _, err := svc.AcquireLock(ctx, "c", "r", Requester{TabID: "t"}, lease); return err }},
		{"MissingTab", func() error { _, err := svc.AcquireLock(ctx, "c", "r", noTab, lease); return err }},
		{"ZeroLease", func() error { _, err := svc.AcquireLock(ctx, "c", "r", userA, 0); return err }},
		{"TransferWithoutTab", func() error { _, err := svc.TransferLock(ctx, "c", "r", noTab, lease); return err }},
		{"ExtendWithoutTab", func() error { _, err := svc.ExtendLock(ctx, "c", "r", noTab, time.Minute); return err }},
		{"ReleaseWithoutTab", func() error { _, err := svc.ReleaseLock(ctx, "c", "r", noTab, ""); return err }},
		{"GroupSeparatorInResource", func() error { _, err := svc.AcquireLock(ctx, "c", "a#b", userA, lease); return err }},
		{"StatusWithoutUser", func() error { _, err := svc.GetLockStatus(ctx, "c", "r", Requester{}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestMalformedRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t, nil)

	_, err := st.Put(ctx, storeKey("c", "r"), []byte("{not json"))
	require.NoError(t, err)

	_, err = svc.AcquireLock(ctx, "c", "r", userA, lease)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = svc.GetLockStatus(ctx, "c", "r", userA)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	// listing skips the broken document
	locks, err := svc.ListLocks(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, locks)
}
