package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLease = 10 * time.Minute

var (
	alice = Identity{UserID: "user-a", Email: "a@example.com", DisplayName: "Alice"}
	bob   = Identity{UserID: "user-b", Email: "b@example.com", DisplayName: "Bob"}
)

// newTestAPI starts an api server on an in memory store with a manual clock
func newTestAPI(t *testing.T, groups *lockmgr.GroupResolver, auth AuthConfig) (*httptest.Server, *lockmgr.ManualClock) {
	t.Helper()
	clock := lockmgr.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	opts := lockmgr.DefaultOptions()
	opts.Clock = clock
	opts.Groups = groups
	st := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })

	handler, err := NewHandler(lockmgr.NewLockService(st, opts), Config{
		Leases: lockmgr.LeasePolicy{Default: testLease, Overrides: map[string]time.Duration{"short": time.Minute}},
		Auth:   auth,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, clock
}

// call sends a JSON request as id and decodes the response into out (if not nil)
func call(t *testing.T, srv *httptest.Server, id Identity, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if id.UserID != "" {
		req.Header.Set(HeaderUserID, id.UserID)
		req.Header.Set(HeaderUserEmail, id.Email)
		req.Header.Set(HeaderUserName, id.DisplayName)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestScenariosOverHTTP(t *testing.T) {
	srv, clock := newTestAPI(t, nil, AuthConfig{})
	const path = "/locks/magazine_sections/sec-42"

	// free resource is granted
	var acq AcquireResponse
	status := call(t, srv, alice, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab1"}, &acq)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, acq.Success)
	require.NotNil(t, acq.LockExpiresAt)
	assert.True(t, clock.Now().Add(testLease).Equal(*acq.LockExpiresAt))

	// another user is refused with owner context
	acq = AcquireResponse{}
	status = call(t, srv, bob, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab9"}, &acq)
	assert.Equal(t, http.StatusLocked, status)
	assert.False(t, acq.Success)
	assert.Equal(t, "user-a", acq.LockedBy)
	assert.Equal(t, "Alice", acq.LockedByName)
	assert.Equal(t, "a@example.com", acq.LockedByEmail)
	assert.False(t, acq.IsMultiTabConflict)
	assert.False(t, acq.AllowTransfer)

	// same user in a second tab
	acq = AcquireResponse{}
	status = call(t, srv, alice, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab2"}, &acq)
	assert.Equal(t, http.StatusLocked, status)
	assert.True(t, acq.IsMultiTabConflict)
	assert.True(t, acq.AllowTransfer)

	// transfer to the second tab
	var msg MessageResponse
	status = call(t, srv, alice, http.MethodPost, path+"/transfer", TransferRequest{TabID: "tab2"}, &msg)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, msg.Success)

	var st StatusResponse
	status = call(t, srv, alice, http.MethodGet, path+"/status?tabId=tab2", nil, &st)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, st.Status.HasLock)
	assert.True(t, st.Status.CanEdit)
	assert.Equal(t, "tab2", st.Status.LockedTabID)

	// the old tab lost the lock
	msg = MessageResponse{}
	status = call(t, srv, alice, http.MethodPost, path+"/extend", ExtendRequest{TabID: "tab1"}, &msg)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, msg.Success)

	// after expiry another user gets it
	clock.Advance(testLease + time.Second)
	acq = AcquireResponse{}
	status = call(t, srv, bob, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab9"}, &acq)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, acq.Success)
	assert.Equal(t, "user-b", acq.LockedBy)
}

func TestLockGroupOverHTTP(t *testing.T) {
	groups := lockmgr.NewGroupResolver(lockmgr.GroupMapping{
		"magazine_issues": {"basic-info": "issue-metadata", "cover-config": "issue-metadata"},
	})
	srv, _ := newTestAPI(t, groups, AuthConfig{})

	var acq AcquireResponse
	status := call(t, srv, alice, http.MethodPost, "/locks/magazine_issues/issue-7/acquire",
		AcquireRequest{TabID: "tab1", LockGroup: "basic-info"}, &acq)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "issue-7#issue-metadata", acq.ResourceKey)

	var st StatusResponse
	status = call(t, srv, bob, http.MethodGet, "/locks/magazine_issues/issue-7/status?tabId=tab9&lockGroup=cover-config", nil, &st)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, st.Status.IsLocked)
	assert.False(t, st.Status.CanEdit)
	assert.Equal(t, "user-a", st.Status.LockedBy)
}

func TestExtendAndRelease(t *testing.T) {
	srv, clock := newTestAPI(t, nil, AuthConfig{})
	const path = "/locks/docs/d-1"

	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab1"}, nil))

	// default extension is five minutes
	var msg MessageResponse
	status := call(t, srv, alice, http.MethodPost, path+"/extend", ExtendRequest{TabID: "tab1"}, &msg)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, msg.LockExpiresAt)
	assert.True(t, clock.Now().Add(DefaultExtendBy).Equal(*msg.LockExpiresAt))

	minutes := 20.0
	msg = MessageResponse{}
	status = call(t, srv, alice, http.MethodPost, path+"/extend", ExtendRequest{TabID: "tab1", ExtendByMinutes: &minutes}, &msg)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, clock.Now().Add(20*time.Minute).Equal(*msg.LockExpiresAt))

	// someone else can neither extend nor release
	assert.Equal(t, http.StatusBadRequest, call(t, srv, bob, http.MethodPost, path+"/extend", ExtendRequest{TabID: "tab9"}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, bob, http.MethodPost, path+"/release", ReleaseRequest{TabID: "tab9"}, nil))

	msg = MessageResponse{}
	status = call(t, srv, alice, http.MethodPost, path+"/release", ReleaseRequest{TabID: "tab1", Reason: "saved"}, &msg)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, msg.Success)

	var st StatusResponse
	require.Equal(t, http.StatusOK, call(t, srv, bob, http.MethodGet, path+"/status", nil, &st))
	assert.False(t, st.Status.IsLocked)
	assert.True(t, st.Status.CanEdit)
	assert.Nil(t, st.Status.LockExpiresAt)
}

func TestStaleTabCannotReleaseAfterTransfer(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})
	const path = "/locks/docs/d-2"

	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, path+"/acquire", AcquireRequest{TabID: "tab1"}, nil))
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, path+"/transfer", TransferRequest{TabID: "tab2"}, nil))

	// a request without a tab is not matched against any of the user's tabs
	var msg MessageResponse
	assert.Equal(t, http.StatusBadRequest, call(t, srv, alice, http.MethodPost, path+"/release", ReleaseRequest{Reason: "tab closed"}, &msg))
	assert.False(t, msg.Success)
	assert.Contains(t, msg.Message, "tabId")
	assert.Equal(t, http.StatusBadRequest, call(t, srv, alice, http.MethodPost, path+"/extend", ExtendRequest{}, nil))

	// the old tab lost the lock with the transfer
	assert.Equal(t, http.StatusBadRequest, call(t, srv, alice, http.MethodPost, path+"/release", ReleaseRequest{TabID: "tab1"}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, alice, http.MethodPost, path+"/extend", ExtendRequest{TabID: "tab1"}, nil))

	var st StatusResponse
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodGet, path+"/status?tabId=tab2", nil, &st))
	assert.True(t, st.Status.IsLocked)
	assert.True(t, st.Status.HasLock)
	assert.Equal(t, "tab2", st.Status.LockedTabID)

	st = StatusResponse{}
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodGet, path+"/status", nil, &st))
	assert.False(t, st.Status.HasLock)
}

func TestTabIDFromHeader(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/locks/docs/d-1/acquire", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, alice.UserID)
	req.Header.Set(HeaderTabID, "tab-from-header")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatusResponse
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodGet, "/locks/docs/d-1/status?tabId=tab-from-header", nil, &st))
	assert.True(t, st.Status.HasLock)
	assert.Equal(t, "tab-from-header", st.Status.LockedTabID)
}

func TestLeaseOverride(t *testing.T) {
	srv, clock := newTestAPI(t, nil, AuthConfig{})

	var acq AcquireResponse
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, "/locks/short/x/acquire", AcquireRequest{TabID: "tab1"}, &acq))
	require.NotNil(t, acq.LockExpiresAt)
	assert.True(t, clock.Now().Add(time.Minute).Equal(*acq.LockExpiresAt))
}

func TestListLocks(t *testing.T) {
	srv, clock := newTestAPI(t, nil, AuthConfig{})

	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, "/locks/docs/d-1/acquire", AcquireRequest{TabID: "tab1"}, nil))
	clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, call(t, srv, bob, http.MethodPost, "/locks/docs/d-2/acquire", AcquireRequest{TabID: "tab9"}, nil))
	require.Equal(t, http.StatusOK, call(t, srv, bob, http.MethodPost, "/locks/other/o-1/acquire", AcquireRequest{TabID: "tab9"}, nil))

	var list ListResponse
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodGet, "/locks/docs", nil, &list))
	require.Len(t, list.Locks, 2)
	owners := map[string]string{}
	for _, l := range list.Locks {
		owners[l.ResourceID] = l.LockedBy
	}
	assert.Equal(t, map[string]string{"d-1": "user-a", "d-2": "user-b"}, owners)

	// the first lock expires
	clock.Advance(testLease - 30*time.Second)
	list = ListResponse{}
	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodGet, "/locks/docs", nil, &list))
	require.Len(t, list.Locks, 1)
	assert.Equal(t, "d-2", list.Locks[0].ResourceID)
}

func TestValidation(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})

	var msg MessageResponse
	status := call(t, srv, alice, http.MethodPost, "/locks/docs/d-1/acquire", AcquireRequest{}, &msg)
	assert.Equal(t, http.StatusBadRequest, status, "acquire needs a tab id")
	assert.False(t, msg.Success)
	assert.Contains(t, msg.Message, "tabId")

	for _, minutes := range []float64{0, -3, maxExtendMinutes + 1} {
		m := minutes
		msg = MessageResponse{}
		status = call(t, srv, alice, http.MethodPost, "/locks/docs/d-1/extend", ExtendRequest{TabID: "tab1", ExtendByMinutes: &m}, &msg)
		assert.Equal(t, http.StatusBadRequest, status, "extendByMinutes=%v", minutes)
		assert.Contains(t, msg.Message, "extendByMinutes")
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/locks/docs/d-1/acquire", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, alice.UserID)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMissingIdentity(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})

	var msg MessageResponse
	status := call(t, srv, Identity{}, http.MethodPost, "/locks/docs/d-1/acquire", AcquireRequest{TabID: "tab1"}, &msg)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ErrUnauthenticated.Error(), msg.Message)

	// health does not need an identity
	assert.Equal(t, http.StatusOK, call(t, srv, Identity{}, http.MethodGet, "/healthz", nil, nil))
}

func TestJWTAuthentication(t *testing.T) {
	const secret = "test-secret"
	srv, _ := newTestAPI(t, nil, AuthConfig{JWTSecret: secret, Issuer: "dlock-test", Leeway: time.Second})

	sign := func(t *testing.T, secret string, claims Claims) string {
		token, err := SignToken(secret, claims)
		require.NoError(t, err)
		return token
	}
	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			Issuer:    "dlock-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "a@example.com",
		Name:  "Alice",
	}

	send := func(token string) (int, AcquireResponse) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/locks/docs/d-1/acquire", strings.NewReader(`{"tabId":"tab1"}`))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		// ignored in jwt mode
		req.Header.Set(HeaderUserID, "intruder")
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out AcquireResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, res := send(sign(t, secret, valid))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-a", res.LockedBy)
	assert.Equal(t, "Alice", res.LockedByName)

	status, _ = send("")
	assert.Equal(t, http.StatusUnauthorized, status, "no token")

	status, _ = send(sign(t, "other-secret", valid))
	assert.Equal(t, http.StatusUnauthorized, status, "wrong secret")

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	status, _ = send(sign(t, secret, expired))
	assert.Equal(t, http.StatusUnauthorized, status, "expired")

	noSubject := valid
	noSubject.Subject = ""
	status, _ = send(sign(t, secret, noSubject))
	assert.Equal(t, http.StatusUnauthorized, status, "no subject")

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	status, _ = send(sign(t, secret, wrongIssuer))
	assert.Equal(t, http.StatusUnauthorized, status, "wrong issuer")
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})

	require.Equal(t, http.StatusOK, call(t, srv, alice, http.MethodPost, "/locks/docs/d-1/acquire", AcquireRequest{TabID: "tab1"}, nil))

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `dlock_api_requests_total{route="acquire",status="200"}`)
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestAPI(t, nil, AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))
}

// failingService lets single methods fail or panic
type failingService struct {
	lockmgr.ILockService
	panic bool
	err   error
}

func (s *failingService) AcquireLock(context.Context, string, string, lockmgr.Requester, time.Duration) (lockmgr.LockResult, error) {
	if s.panic {
		panic("boom")
	}
	return lockmgr.LockResult{}, s.err
}

func TestServiceFailures(t *testing.T) {
	cfg := Config{Leases: lockmgr.LeasePolicy{Default: testLease}}

	for name, svc := range map[string]*failingService{
		"error": {err: errors.New("store unavailable")},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			handler, err := NewHandler(svc, cfg)
			require.NoError(t, err)
			srv := httptest.NewServer(handler)
			defer srv.Close()

			var msg MessageResponse
			status := call(t, srv, alice, http.MethodPost, "/locks/docs/d-1/acquire", AcquireRequest{TabID: "tab1"}, &msg)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, "internal error", msg.Message)
		})
	}
}

func TestNewHandlerRejectsBadConfig(t *testing.T) {
	_, err := NewHandler(nil, Config{Leases: lockmgr.LeasePolicy{Default: testLease}})
	assert.Error(t, err)

	_, err = NewHandler(&failingService{}, Config{})
	assert.Error(t, err)
}
