package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders     services.OrderService
	Inventory  services.InventoryLedger
	Promotions services.PromotionResolver
	PromoAdmin services.PromotionAdminService
	System     services.SystemService
}

// Options carries the runtime collaborators that are not derived from the registry.
// Every field is optional. HealthChecks are run by /readyz next to the
// registry's own checks.
type Options struct {
	Events       services.OrderEventPublisher
	Metrics      services.OrderMetrics
	Tracer       trace.Tracer
	Logger       func(ctx context.Context, event string, fields map[string]any)
	Build        services.BuildInfo
	Clock        func() time.Time
	HealthChecks []repositories.DependencyCheck
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply the in-memory registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts Options) (Services, error) {
	var svc Services

	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products: reg.Products(),
		Logger:   opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}
	svc.Inventory = ledger

	promotions, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotions

	promoAdmin, err := services.NewPromotionAdminService(services.PromotionAdminServiceDeps{
		Promotions: reg.Promotions(),
		UnitOfWork: reg,
		Clock:      opts.Clock,
		Tracer:     opts.Tracer,
		Logger:     opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion admin service: %w", err)
	}
	svc.PromoAdmin = promoAdmin

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Inventory:  ledger,
		Promotions: promotions,
		UnitOfWork: reg,
		Clock:      opts.Clock,
		Events:     opts.Events,
		Metrics:    opts.Metrics,
		Tracer:     opts.Tracer,
		Logger:     opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	var extra repositories.HealthRepository
	if len(opts.HealthChecks) > 0 {
		extra, err = repositories.NewDependencyHealthRepository(opts.HealthChecks)
		if err != nil {
			return Services{}, fmt.Errorf("build health checks: %w", err)
		}
	}
	if health := repositories.JoinHealth(reg.Health(), extra); health != nil {
		build := opts.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            opts.Clock,
			Build:            build,
			CacheTTL:         cfg.Server.ReadinessCacheTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
