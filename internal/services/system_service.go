package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// BuildInfo is the release metadata reported by /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps configures NewSystemService. CacheTTL, when positive,
// lets readiness checks that arrive in quick succession share one dependency sweep.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	CacheTTL         time.Duration
}

type systemService struct {
	health repositories.HealthRepository
	clock  func() time.Time
	build  BuildInfo
	ttl    time.Duration

	mu       sync.Mutex
	cached   SystemHealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		clock:  func() time.Time { return clock().UTC() },
		build:  deps.Build,
		ttl:    deps.CacheTTL,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.clock()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.ttl > 0 && !s.cachedAt.IsZero() && now.Sub(s.cachedAt) < s.ttl {
		report := s.cached
		report.Uptime = now.Sub(s.build.StartedAt)
		return report, nil
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		s.cachedAt = time.Time{}
		return SystemHealthReport{}, err
	}
	report = s.decorate(report, now)
	if s.ttl > 0 {
		s.cached, s.cachedAt = report, now
	}
	return report, nil
}

// decorate fills build metadata and derives the overall status when the
// repository left it blank.
func (s *systemService) decorate(report SystemHealthReport, now time.Time) SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	report.Uptime = now.Sub(s.build.StartedAt)
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = repositories.WorstHealthStatus(report.Checks)
	}
	return report
}
