package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs the api with Serve on a random port and stops it on cleanup
func startServer(t *testing.T) string {
	t.Helper()
	st := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	handler, err := NewHandler(lockmgr.NewLockService(st, nil), Config{Leases: lockmgr.LeasePolicy{Default: testLease}})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Errorf("server did not shut down")
		}
	})
	return listener.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	aliceClient := NewClient(addr, WithIdentity(alice))
	bobClient := NewClient("http://"+addr+"/", WithIdentity(bob))

	require.NoError(t, aliceClient.Health(ctx))

	acq, err := aliceClient.Acquire(ctx, "docs", "d 1", AcquireRequest{TabID: "tab1"})
	require.NoError(t, err)
	assert.True(t, acq.Success)

	acq, err = bobClient.Acquire(ctx, "docs", "d 1", AcquireRequest{TabID: "tab9"})
	require.NoError(t, err, "a conflict is a result, not an error")
	assert.False(t, acq.Success)
	assert.Equal(t, "user-a", acq.LockedBy)

	st, err := bobClient.Status(ctx, "docs", "d 1", "tab9", "")
	require.NoError(t, err)
	assert.True(t, st.IsLocked)
	assert.False(t, st.CanEdit)
	assert.Equal(t, "d 1", st.ResourceID)

	ext, err := aliceClient.Extend(ctx, "docs", "d 1", ExtendRequest{TabID: "tab1"})
	require.NoError(t, err)
	assert.True(t, ext.Success)

	acq, err = aliceClient.Acquire(ctx, "docs", "d 1", AcquireRequest{TabID: "tab2"})
	require.NoError(t, err)
	assert.True(t, acq.IsMultiTabConflict)

	tr, err := aliceClient.Transfer(ctx, "docs", "d 1", TransferRequest{TabID: "tab2"})
	require.NoError(t, err)
	assert.True(t, tr.Success)

	locks, err := bobClient.List(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "tab2", locks[0].LockedTabID)

	rel, err := bobClient.Release(ctx, "docs", "d 1", ReleaseRequest{TabID: "tab9"})
	require.NoError(t, err)
	assert.False(t, rel.Success)

	rel, err = aliceClient.Release(ctx, "docs", "d 1", ReleaseRequest{TabID: "tab2", Reason: "done"})
	require.NoError(t, err)
	assert.True(t, rel.Success)

	locks, err = bobClient.List(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	// no identity
	_, err := NewClient(addr).Acquire(ctx, "docs", "d-1", AcquireRequest{TabID: "tab1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, ErrUnauthenticated.Error(), apiErr.Message)

	// validation errors of lock operations are results
	res, err := NewClient(addr, WithIdentity(alice)).Acquire(ctx, "docs", "d-1", AcquireRequest{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "tabId")
}
