package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
)

func TestRequestLoggerLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(middleware.RequestID, TraceMiddleware(), InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handler")
		w.WriteHeader(http.StatusConflict)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	if logs.Len() != 2 {
		t.Fatalf("expected handler and access entries, got %d", logs.Len())
	}
	access := logs.All()[1]
	if access.Level != zapcore.WarnLevel {
		t.Fatalf("expected 4xx at warn, got %s", access.Level)
	}
	fields := access.ContextMap()
	if fields["route"] != "/orders/{orderID}" || fields["status"] != int64(http.StatusConflict) {
		t.Fatalf("unexpected access fields %v", fields)
	}
	if fields["request_id"] == "" || fields["trace_id"] == "" {
		t.Fatalf("expected request and trace ids, got %v", fields)
	}
	if logs.All()[0].ContextMap()["request_id"] != fields["request_id"] {
		t.Fatalf("handler logger should share request fields")
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "internal_server_error" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerAppendsAnnotations(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	router.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		requestctx.Annotate(r.Context(), zap.String("user_id", "usr_sale"), zap.String("order_id", "ord_9"))
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Idempotency-Key", "k-1")
	req.Header.Set("User-Agent", "pos-terminal\n/1.0")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.InfoLevel || fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("unexpected access entry %v at %s", fields, entries[0].Level)
	}
	if fields["user_id"] != "usr_sale" || fields["order_id"] != "ord_9" {
		t.Fatalf("expected annotations on access entry, got %v", fields)
	}
	if fields["idempotency_key"] != true || fields["user_agent"] != "pos-terminal/1.0" {
		t.Fatalf("expected cleaned request headers, got %v", fields)
	}
}

func TestRequestLoggerMarksPanicsAsServerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(
		RecoveryMiddleware(nil)(
			RequestLoggerMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			})),
		),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	access := logs.FilterMessage("request completed").All()
	if len(access) != 1 || access[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected an error-level access entry, got %+v", access)
	}
	if access[0].ContextMap()["status"] != int64(http.StatusInternalServerError) {
		t.Fatalf("unexpected status %v", access[0].ContextMap()["status"])
	}
}
