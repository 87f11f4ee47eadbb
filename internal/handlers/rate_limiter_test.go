package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
)

func TestUserLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newUserLimiter(2, time.Minute, func() time.Time { return now })

	for i := range 2 {
		if ok, _ := limiter.Allow("sale-1"); !ok {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	ok, wait := limiter.Allow("sale-1")
	if ok {
		t.Fatal("third hit should be refused")
	}
	if wait != 30*time.Second {
		t.Fatalf("one token refills every 30s, got %s", wait)
	}
	if ok, _ := limiter.Allow("sale-2"); !ok {
		t.Fatal("other users keep their own budget")
	}

	now = now.Add(30 * time.Second)
	if ok, _ := limiter.Allow("sale-1"); !ok {
		t.Fatal("expected a refilled token")
	}
	if ok, _ := limiter.Allow("sale-1"); ok {
		t.Fatal("only one token should have refilled")
	}
}

func TestUserLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newUserLimiter(1, time.Minute, func() time.Time { return now })
	limiter.Allow("sale-1")

	now = now.Add(2 * time.Minute)
	limiter.Allow("sale-2")
	if _, ok := limiter.buckets["sale-1"]; ok {
		t.Fatal("idle bucket should have been evicted")
	}
}

func TestMutationRateLimitOnlyThrottlesWrites(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mw := mutationRateLimit(newUserLimiter(1, time.Minute, func() time.Time { return now }))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/orders", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), saleIdentity))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(http.MethodPost); rr.Code != http.StatusNoContent {
		t.Fatalf("first write: expected 204, got %d", rr.Code)
	}
	rr := send(http.MethodPost)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if rr := send(http.MethodGet); rr.Code != http.StatusNoContent {
		t.Fatalf("reads must not be throttled, got %d", rr.Code)
	}
}

func TestMutationRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if got := MutationRateLimit(0)(next); got == nil {
		t.Fatal("expected pass-through handler")
	}
}
