package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"
)

// APIError is returned by the Client when the server answers with a status that carries
// no lock result (401, 404, 5xx ...)
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithToken sends the token as bearer authorization
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithIdentity sends the identity as X-User-* headers (development mode servers only)
func WithIdentity(id Identity) ClientOption {
	return func(c *Client) { c.identity = id }
}

// WithHTTPClient replaces the default http client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// Client is a typed client of the REST api
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	identity Identity
}

// NewClient creates a client for the api at baseURL (e.g. "http://localhost:8080")
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --------------------------------------------------------------------------
// Lock operations
// --------------------------------------------------------------------------

// Acquire requests the lock. A conflict is no error, check AcquireResponse.Success.
func (c *Client) Acquire(ctx context.Context, collection, resourceID string, req AcquireRequest) (AcquireResponse, error) {
	var res AcquireResponse
	err := c.do(ctx, http.MethodPost, lockPath(collection, resourceID, "acquire"), nil, req, &res)
	return res, err
}

// Extend renews the lease of a held lock
func (c *Client) Extend(ctx context.Context, collection, resourceID string, req ExtendRequest) (MessageResponse, error) {
	var res MessageResponse
	err := c.do(ctx, http.MethodPost, lockPath(collection, resourceID, "extend"), nil, req, &res)
	return res, err
}

// Release gives a held lock up
func (c *Client) Release(ctx context.Context, collection, resourceID string, req ReleaseRequest) (MessageResponse, error) {
	var res MessageResponse
	err := c.do(ctx, http.MethodPost, lockPath(collection, resourceID, "release"), nil, req, &res)
	return res, err
}

// Transfer moves a lock held by another tab of the caller to req.TabID
func (c *Client) Transfer(ctx context.Context, collection, resourceID string, req TransferRequest) (MessageResponse, error) {
	var res MessageResponse
	err := c.do(ctx, http.MethodPost, lockPath(collection, resourceID, "transfer"), nil, req, &res)
	return res, err
}

// Status returns the lock state of a resource as seen from tabID
func (c *Client) Status(ctx context.Context, collection, resourceID, tabID, lockGroup string) (StatusView, error) {
	query := url.Values{}
	if tabID != "" {
		query.Set("tabId", tabID)
	}
	if lockGroup != "" {
		query.Set("lockGroup", lockGroup)
	}
	var res StatusResponse
	err := c.do(ctx, http.MethodGet, lockPath(collection, resourceID, "status"), query, nil, &res)
	return res.Status, err
}

// List returns the live locks of a collection
func (c *Client) List(ctx context.Context, collection string) ([]LockView, error) {
	var res ListResponse
	err := c.do(ctx, http.MethodGet, "/locks/"+url.PathEscape(collection), nil, nil, &res)
	return res.Locks, err
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	var res MessageResponse
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, &res)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func lockPath(collection, resourceID, op string) string {
	return "/locks/" + url.PathEscape(collection) + "/" + url.PathEscape(resourceID) + "/" + op
}

// do sends one request. A 200 response is decoded into out. Lock operations (body != nil)
// also report refusals with 400 and 423, those are decoded too. Every other status is
// returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.identity.UserID != "" {
		req.Header.Set(HeaderUserID, c.identity.UserID)
		req.Header.Set(HeaderUserEmail, c.identity.Email)
		req.Header.Set(HeaderUserName, c.identity.DisplayName)
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	hasResult := resp.StatusCode == http.StatusOK ||
		(body != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusLocked))
	if !hasResult {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg MessageResponse
		if json.Unmarshal(data, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
