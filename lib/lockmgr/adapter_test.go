package lockmgr

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the next n conditional writes with the given code
type flakyStore struct {
	store.IStore
	failures atomic.Int32
	code     store.RetCode
	puts     atomic.Int32
}

func (f *flakyStore) PutIf(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	f.puts.Add(1)
	if f.failures.Add(-1) >= 0 {
		return 0, store.NewError(f.code, "injected")
	}
	return f.IStore.PutIf(ctx, key, value, expected)
}

func newFlakyService(t *testing.T, failures int32, code store.RetCode) (ILockService, *flakyStore) {
	t.Helper()
	flaky := &flakyStore{IStore: newMemoryStore(), code: code}
	flaky.failures.Store(failures)
	opts := DefaultOptions()
	opts.Clock = NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewLockService(flaky, opts), flaky
}

func TestRetryOnceAfterLostRace(t *testing.T) {
	svc, flaky := newFlakyService(t, 1, store.RetCConditionFailed)

	res, err := svc.AcquireLock(context.Background(), "c", "r", userA, lease)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, int32(2), flaky.puts.Load())
}

func TestSecondLostRaceIsConflict(t *testing.T) {
	svc, flaky := newFlakyService(t, 2, store.RetCConditionFailed)

	res, err := svc.AcquireLock(context.Background(), "c", "r", userA, lease)
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Equal(t, int32(2), flaky.puts.Load(), "never more than one retry")
}

func TestTransientStoreErrorIsRetriedThenPropagated(t *testing.T) {
	svc, _ := newFlakyService(t, 1, store.RetCInternalError)
	res, err := svc.AcquireLock(context.Background(), "c", "r", userA, lease)
	require.NoError(t, err)
	assert.True(t, res.Granted)

	svc, _ = newFlakyService(t, 2, store.RetCInternalError)
	_, err = svc.AcquireLock(context.Background(), "c", "r", userA, lease)
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))
	assert.False(t, IsValidationError(err))
}

func TestUnsupportedOperationIsNotRetried(t *testing.T) {
	svc, flaky := newFlakyService(t, 5, store.RetCUnsupportedOperation)
	_, err := svc.AcquireLock(context.Background(), "c", "r", userA, lease)
	require.Error(t, err)
	assert.Equal(t, int32(1), flaky.puts.Load())
}

func TestLockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	locks := &lockStore{store: newMemoryStore()}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := &LockRecord{
		Collection:  "c",
		ResourceKey: "r",
		OwnerUserID: "u",
		AcquiredAt:  now,
		RenewedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}
	require.NoError(t, locks.create(ctx, rec))
	assert.NotEqual(t, db.VersionAbsent, rec.Version)

	got, found, err := locks.read(ctx, "c", "r")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.Version, got.Version)
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

	assert.True(t, store.IsConditionFailed(locks.create(ctx, rec)))
	assert.True(t, store.IsConditionFailed(locks.remove(ctx, "c", "r", rec.Version+1)))
	require.NoError(t, locks.remove(ctx, "c", "r", rec.Version))

	_, found, err = locks.read(ctx, "c", "r")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordValidate(t *testing.T) {
	now := time.Now()
	valid := LockRecord{Collection: "c", ResourceKey: "r", OwnerUserID: "u", AcquiredAt: now, ExpiresAt: now.Add(time.Second)}
	require.NoError(t, valid.Validate())

	broken := valid
	broken.OwnerUserID = ""
	assert.ErrorIs(t, broken.Validate(), ErrMalformedRecord)

	broken = valid
	broken.ExpiresAt = now.Add(-time.Second)
	assert.ErrorIs(t, broken.Validate(), ErrMalformedRecord)

	_, err := decodeRecord([]byte(`{"collection":"c"}`), 1)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
