package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
	defaultMaxBody    = 1 << 20
	anonymousCaller   = "anonymous"
)

type clockFunc func() time.Time

// MiddlewareOption customises the guard.
type MiddlewareOption func(*guard)

// WithHeader overrides the header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = http.CanonicalHeaderKey(name)
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods limits which methods are guarded. Defaults to POST, PUT, PATCH and DELETE.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

// WithRequiredKey rejects guarded requests without a key. Otherwise they run unguarded.
func WithRequiredKey() MiddlewareOption {
	return func(g *guard) { g.requireKey = true }
}

// WithMaxBody caps the request body read for fingerprinting.
func WithMaxBody(limit int64) MiddlewareOption {
	return func(g *guard) {
		if limit > 0 {
			g.maxBody = limit
		}
	}
}

func WithClock(clock clockFunc) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

type guard struct {
	store      Store
	header     string
	ttl        time.Duration
	methods    map[string]struct{}
	requireKey bool
	maxBody    int64
	clock      clockFunc
}

// Middleware makes retried order mutations safe: a repeated key from the same
// caller replays the first response instead of creating a second order. It
// reads the caller from auth, so mount it after the authenticator. Server
// errors are not stored and leave the key free for a retry.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		methods: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
		maxBody: defaultMaxBody,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if _, guarded := g.methods[r.Method]; !guarded {
		next.ServeHTTP(w, r)
		return
	}

	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.requireKey:
		fail(w, r, http.StatusBadRequest, "idempotency_key_required", "missing "+g.header+" header")
		return
	case key == "":
		next.ServeHTTP(w, r)
		return
	case len(key) > maxKeyLength:
		fail(w, r, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key too long")
		return
	}

	body, err := bufferBody(r, g.maxBody)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}
		fail(w, r, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}

	ctx := r.Context()
	caller := callerID(r)
	scoped := scopedKey(key, caller)
	fingerprint := requestFingerprint(r, body, caller)
	logger := requestctx.Logger(ctx).With(zap.String("idempotency_key", key))

	reservation, err := g.store.Reserve(ctx, scoped, fingerprint, g.clock().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		requestctx.Annotate(ctx, zap.String("idempotency", "mismatch"))
		fail(w, r, http.StatusUnprocessableEntity, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	case err != nil:
		logger.Error("idempotency reserve failed", zap.Error(err))
		fail(w, r, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		requestctx.Annotate(ctx, zap.String("idempotency", "replayed"))
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		requestctx.Annotate(ctx, zap.String("idempotency", "in_progress"))
		fail(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	capture := newCaptureWriter()
	next.ServeHTTP(capture, r)
	resp := capture.response()

	if resp.Status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, scoped, fingerprint); err != nil {
			logger.Warn("idempotency release failed", zap.Error(err))
		}
		capture.flushTo(w)
		return
	}
	if err := g.store.SaveResponse(ctx, scoped, fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
		logger.Error("idempotency save failed", zap.String("caller", caller), zap.Error(err))
		if err := g.store.Release(ctx, scoped, fingerprint); err != nil {
			logger.Warn("idempotency release failed", zap.Error(err))
		}
		fail(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	requestctx.Annotate(ctx, zap.String("idempotency", "stored"))
	capture.flushTo(w)
}

// bufferBody reads the body once and puts a replayable copy back on r.
func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func callerID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return identity.UID
	}
	return anonymousCaller
}

func scopedKey(key, caller string) string {
	return strings.TrimSpace(key) + "|" + caller
}

// requestFingerprint identifies the request a key was first used for. JSON
// bodies are compared by content, so key order and whitespace do not matter.
func requestFingerprint(r *http.Request, body []byte, caller string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.Query().Encode(),
		caller,
		sha256Hex(canonicalBody(body)),
	}
	return sha256Hex([]byte(strings.Join(parts, "\x00")))
}

func canonicalBody(body []byte) []byte {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return body
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return body
	}
	return canonical
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append([]string(nil), values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
