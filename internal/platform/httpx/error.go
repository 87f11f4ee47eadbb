// Package httpx holds the JSON error envelope shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxIDLength      = 80
	maxTraceIDLength = 64
)

// envelope keys that details may never override.
var reservedKeys = map[string]struct{}{
	"error":      {},
	"message":    {},
	"status":     {},
	"request_id": {},
	"trace_id":   {},
}

// Error is the API error envelope:
//
//	{"error": code, "message": ..., "status": 400, "request_id": ..., "trace_id": ..., <details>}
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an envelope. A zero status means 500; an empty code falls
// back to a slug derived from the status.
func NewError(code, message string, status int) Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	code = clean(code, maxCodeLength)
	if code == "" {
		code = statusCode(status)
	}
	message = clean(message, maxMessageLength)
	if message == "" {
		message = http.StatusText(status)
	}
	return Error{Code: code, Message: message, Status: status}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithRequestID overrides the request id taken from the chi middleware.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, maxIDLength)
	return e
}

// WithTraceID overrides the trace id taken from the request context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, maxTraceIDLength)
	return e
}

// WithDetail adds a single top-level field to the envelope.
func (e Error) WithDetail(key string, value any) Error {
	key = strings.TrimSpace(key)
	if key == "" {
		return e
	}
	return e.WithDetails(map[string]any{key: value})
}

// WithDetails merges extra top-level fields. Envelope keys are ignored.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	for k, v := range details {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError writes err as JSON, filling request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err = NewError(err.Code, err.Message, http.StatusInternalServerError).WithDetails(err.Details)
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = clean(middleware.GetReqID(ctx), maxIDLength)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = clean(requestctx.TraceID(ctx), maxTraceIDLength)
	}

	payload := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = err.Status
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusCode turns "Service Unavailable" into "service_unavailable".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}

// clean strips control characters and truncates to limit runes.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if runes := []rune(value); len(runes) > limit {
		value = strings.TrimSpace(string(runes[:limit]))
	}
	return value
}
