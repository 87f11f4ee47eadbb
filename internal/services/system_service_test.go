package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"store":  {Status: domain.HealthStatusOK},
				"events": {Status: domain.HealthStatusDegraded},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "prod", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "prod" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 5*time.Minute {
		t.Fatalf("expected uptime 5m, got %s", report.Uptime)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: boom}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without health repository")
	}
}

func TestSystemServiceCachesReports(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{StartedAt: start},
		CacheTTL:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.HealthReport(ctx); err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	now = start.Add(time.Second)
	report, err := svc.HealthReport(ctx)
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected cached report, repository called %d times", repo.calls)
	}
	if report.Uptime != time.Second {
		t.Fatalf("cached report should refresh uptime, got %s", report.Uptime)
	}

	now = start.Add(3 * time.Second)
	if _, err := svc.HealthReport(ctx); err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", repo.calls)
	}
}

func TestSystemServiceDoesNotCacheErrors(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("down")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.HealthReport(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	}
	if repo.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", repo.calls)
	}
}
