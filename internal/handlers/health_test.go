package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

type readyzBody struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Checks  map[string]struct {
		Status    string `json:"status"`
		LatencyMS int64  `json:"latencyMs"`
	} `json:"checks"`
	Details []string `json:"details"`
}

func TestHealthzReportsBuild(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.4.0", CommitSHA: "f00dbabe", Environment: "staging", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(90 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     "2.4.0",
		"commitSha":   "f00dbabe",
		"environment": "staging",
		"uptime":      "1m30s",
	}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("%s: expected %v, got %v", key, value, body[key])
		}
	}
}

func TestReadyzStatusCodes(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 5, 0, 0, time.UTC)
	cases := []struct {
		name        string
		report      services.SystemHealthReport
		wantCode    int
		wantDetails []string
	}{
		{
			name: "all ok",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Uptime: 5 * time.Minute,
				Checks: map[string]domain.SystemHealthCheck{
					"postgres": {Status: domain.HealthStatusOK, Latency: 4 * time.Millisecond, CheckedAt: now},
				},
			},
			wantCode: http.StatusOK,
		},
		{
			name: "event sink degraded",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"postgres": {Status: domain.HealthStatusOK},
					"events":   {Status: domain.HealthStatusDegraded, Error: "kafka: brokers unreachable"},
				},
			},
			wantCode:    http.StatusOK,
			wantDetails: []string{"events: kafka: brokers unreachable"},
		},
		{
			name: "store down",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError},
					"postgres":  {Status: domain.HealthStatusError, Error: "connection refused"},
				},
			},
			wantCode:    http.StatusServiceUnavailable,
			wantDetails: []string{"firestore: error", "postgres: connection refused"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandlers(
				WithHealthSystemService(&stubSystemService{report: tc.report}),
				WithHealthClock(func() time.Time { return now }),
			)
			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}

			var body readyzBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.report.Status {
				t.Fatalf("expected status %s, got %s", tc.report.Status, body.Status)
			}
			if len(body.Checks) != len(tc.report.Checks) {
				t.Fatalf("expected %d checks, got %v", len(tc.report.Checks), body.Checks)
			}
			if len(body.Details) != len(tc.wantDetails) {
				t.Fatalf("expected details %v, got %v", tc.wantDetails, body.Details)
			}
			for i := range tc.wantDetails {
				if body.Details[i] != tc.wantDetails[i] {
					t.Fatalf("expected details %v, got %v", tc.wantDetails, body.Details)
				}
			}
		})
	}
}

func TestReadyzOkReportsLatencyAndUptime(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Uptime: 5*time.Minute + 300*time.Millisecond,
		Checks: map[string]domain.SystemHealthCheck{"postgres": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond}},
	}}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body readyzBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Uptime != "5m0s" || body.Checks["postgres"].LatencyMS != 12 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandlers().Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 without checks, got %d", rr.Code)
	}
}

func TestReadyzServiceError(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("pool closed")}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body readyzBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != domain.HealthStatusError || len(body.Details) != 1 || body.Details[0] != "pool closed" {
		t.Fatalf("unexpected body %+v", body)
	}
}
