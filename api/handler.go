package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/telemetry"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	log    = logger.GetLogger("api")
	tracer = otel.Tracer("github.com/ValentinKolb/dLock/api")
)

const (
	// maxBodyBytes limits the size of request bodies
	maxBodyBytes = 64 << 10
	// maxExtendMinutes bounds extendByMinutes to one week
	maxExtendMinutes = 7 * 24 * 60
)

// handler serves the REST surface of a lock service
type handler struct {
	svc    lockmgr.ILockService
	leases lockmgr.LeasePolicy
	auth   *authenticator
}

// identifiedFunc is a route handler that runs after the caller was identified
type identifiedFunc func(w http.ResponseWriter, r *http.Request, id Identity) int

// NewHandler returns the http.Handler of the REST API:
//
//	POST /locks/{collection}/{resourceId}/acquire
//	POST /locks/{collection}/{resourceId}/extend
//	POST /locks/{collection}/{resourceId}/release
//	POST /locks/{collection}/{resourceId}/transfer
//	GET  /locks/{collection}/{resourceId}/status
//	GET  /locks/{collection}
//	GET  /healthz
//	GET  /metrics
func NewHandler(svc lockmgr.ILockService, cfg Config) (http.Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("lock service is required")
	}
	if cfg.Leases.Default <= 0 {
		return nil, fmt.Errorf("default lease must be positive, got %s", cfg.Leases.Default)
	}

	h := &handler{
		svc:    svc,
		leases: cfg.Leases,
		auth:   &authenticator{cfg: cfg.Auth},
	}

	mux := http.NewServeMux()
	mux.Handle("POST /locks/{collection}/{resourceId}/acquire", h.route("acquire", h.acquire))
	mux.Handle("POST /locks/{collection}/{resourceId}/extend", h.route("extend", h.extend))
	mux.Handle("POST /locks/{collection}/{resourceId}/release", h.route("release", h.release))
	mux.Handle("POST /locks/{collection}/{resourceId}/transfer", h.route("transfer", h.transfer))
	mux.Handle("GET /locks/{collection}/{resourceId}/status", h.route("status", h.status))
	mux.Handle("GET /locks/{collection}", h.route("list", h.list))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, MessageResponse{Success: true})
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		telemetry.WriteMetrics(w)
	})

	middleware := []Middleware{RequestID(), RecoverPanic()}
	if strings.EqualFold(cfg.LogLevel, "debug") {
		middleware = append(middleware, LogRequests())
	}
	return Chain(mux, middleware...), nil
}

// route identifies the caller, traces the request and records its metrics
func (h *handler) route(name string, fn identifiedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "api."+name, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.request.id", r.Header.Get(HeaderRequestID)),
		))
		defer span.End()
		r = r.WithContext(ctx)

		var status int
		if id, err := h.auth.identify(r); err != nil {
			log.Debugf("rejected %s %s: %v", r.Method, r.URL.Path, err)
			status = http.StatusUnauthorized
			writeJSON(w, status, MessageResponse{Message: ErrUnauthenticated.Error()})
		} else {
			span.SetAttributes(attribute.String("enduser.id", id.UserID))
			status = fn(w, r, id)
		}

		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_api_requests_total{route=%q,status="%d"}`, name, status)).Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`dlock_api_request_duration_seconds{route=%q}`, name)).UpdateDuration(start)
	})
}

// --------------------------------------------------------------------------
// Routes
// --------------------------------------------------------------------------

func (h *handler) acquire(w http.ResponseWriter, r *http.Request, id Identity) int {
	var body AcquireRequest
	if err := decodeBody(r, &body); err != nil {
		return writeError(w, err)
	}

	collection := r.PathValue("collection")
	res, err := h.svc.AcquireLock(r.Context(), collection, r.PathValue("resourceId"),
		requester(r, id, body.TabID, body.LockGroup), h.leases.For(collection))
	if err != nil {
		return writeError(w, err)
	}

	status := http.StatusOK
	if !res.Granted {
		status = http.StatusLocked
	}
	return writeJSON(w, status, acquireResponseOf(res))
}

func (h *handler) extend(w http.ResponseWriter, r *http.Request, id Identity) int {
	var body ExtendRequest
	if err := decodeBody(r, &body); err != nil {
		return writeError(w, err)
	}

	extendBy := DefaultExtendBy
	if body.ExtendByMinutes != nil {
		minutes := *body.ExtendByMinutes
		if math.IsNaN(minutes) || minutes <= 0 || minutes > maxExtendMinutes {
			return writeError(w, &lockmgr.ValidationError{
				Field: "extendByMinutes",
				Msg:   fmt.Sprintf("must be greater than 0 and at most %d", maxExtendMinutes),
			})
		}
		extendBy = time.Duration(minutes * float64(time.Minute))
	}

	res, err := h.svc.ExtendLock(r.Context(), r.PathValue("collection"), r.PathValue("resourceId"),
		requester(r, id, body.TabID, body.LockGroup), extendBy)
	if err != nil {
		return writeError(w, err)
	}

	status := http.StatusOK
	if !res.Extended {
		status = http.StatusBadRequest
	}
	return writeJSON(w, status, MessageResponse{
		Success:       res.Extended,
		Message:       res.Message,
		LockExpiresAt: timePtr(res.ExpiresAt),
	})
}

func (h *handler) release(w http.ResponseWriter, r *http.Request, id Identity) int {
	var body ReleaseRequest
	if err := decodeBody(r, &body); err != nil {
		return writeError(w, err)
	}

	res, err := h.svc.ReleaseLock(r.Context(), r.PathValue("collection"), r.PathValue("resourceId"),
		requester(r, id, body.TabID, body.LockGroup), body.Reason)
	if err != nil {
		return writeError(w, err)
	}

	status := http.StatusOK
	if !res.Released {
		status = http.StatusBadRequest
	}
	return writeJSON(w, status, MessageResponse{Success: res.Released, Message: res.Message})
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request, id Identity) int {
	var body TransferRequest
	if err := decodeBody(r, &body); err != nil {
		return writeError(w, err)
	}

	collection := r.PathValue("collection")
	res, err := h.svc.TransferLock(r.Context(), collection, r.PathValue("resourceId"),
		requester(r, id, body.TabID, body.LockGroup), h.leases.For(collection))
	if err != nil {
		return writeError(w, err)
	}

	status := http.StatusOK
	switch {
	case res.Transferred:
	case res.Outcome == lockmgr.OutcomeConflict:
		status = http.StatusLocked
	default:
		status = http.StatusBadRequest
	}
	return writeJSON(w, status, MessageResponse{
		Success:       res.Transferred,
		Message:       res.Message,
		LockExpiresAt: timePtr(res.ExpiresAt),
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request, id Identity) int {
	query := r.URL.Query()
	st, err := h.svc.GetLockStatus(r.Context(), r.PathValue("collection"), r.PathValue("resourceId"),
		requester(r, id, query.Get("tabId"), query.Get("lockGroup")))
	if err != nil {
		return writeError(w, err)
	}
	return writeJSON(w, http.StatusOK, StatusResponse{Success: true, Status: statusViewOf(st)})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request, _ Identity) int {
	locks, err := h.svc.ListLocks(r.Context(), r.PathValue("collection"))
	if err != nil {
		return writeError(w, err)
	}

	views := make([]LockView, 0, len(locks))
	for _, rec := range locks {
		views = append(views, lockViewOf(rec))
	}
	return writeJSON(w, http.StatusOK, ListResponse{Success: true, Locks: views})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// requester builds the lock service requester. The tab id of the body wins over the header.
func requester(r *http.Request, id Identity, tabID, lockGroup string) lockmgr.Requester {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		tabID = strings.TrimSpace(r.Header.Get(HeaderTabID))
	}
	return lockmgr.Requester{
		UserID:      id.UserID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		TabID:       tabID,
		LockGroup:   strings.TrimSpace(lockGroup),
	}
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &lockmgr.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}

// writeError maps an error of the lock service to a response and returns the status
func writeError(w http.ResponseWriter, err error) int {
	var vErr *lockmgr.ValidationError
	if errors.As(err, &vErr) {
		return writeJSON(w, http.StatusBadRequest, MessageResponse{Message: vErr.Error()})
	}
	log.Errorf("lock service failed: %v", err)
	return writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "internal error"})
}

// writeJSON writes a JSON response with the provided status code and returns the status
func writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
	return status
}
