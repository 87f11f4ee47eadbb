package di

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories/memory"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Options{}); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestNewContainerWiresOrderFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.Seed(ctx, repositories.SeedData{Products: []domain.Product{
		{ID: "prod-1", SKU: "SKU-1", Name: "Widget", ImportPrice: 1000, Count: 3},
	}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	container, err := NewContainer(ctx, config.Config{Environment: "test"}, store, Options{})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer container.Close(ctx)

	if container.Services.Orders == nil || container.Services.Inventory == nil || container.Services.Promotions == nil {
		t.Fatalf("expected core services, got %+v", container.Services)
	}

	caller := services.Caller{UserID: "usr_sale", Role: domain.RoleSale}
	order, err := container.Services.Orders.CreateOrder(ctx, services.CreateOrderCommand{
		Caller: caller,
		Items:  []services.LineItem{{ProductID: "prod-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("expected Created order, got %s", order.Status)
	}

	products, err := store.Products().FindByIDs(ctx, []string{"prod-1"})
	if err != nil || len(products) != 1 || products[0].Count != 1 {
		t.Fatalf("expected stock reserved through the shared registry, got %+v (%v)", products, err)
	}
}

func TestNewContainerJoinsExtraHealthChecks(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainer(ctx, config.Config{Environment: "test"}, memory.NewStore(), Options{
		HealthChecks: []repositories.DependencyCheck{{
			Name:     "events",
			Optional: true,
			Check:    func(context.Context) error { return errors.New("broker down") },
		}},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	report, err := container.Services.System.HealthReport(ctx)
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if _, ok := report.Checks["store"]; !ok {
		t.Fatalf("expected registry check, got %v", report.Checks)
	}
	if report.Checks["events"].Status != domain.HealthStatusDegraded || report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded readiness from optional check, got %+v", report)
	}
	if report.Environment != "test" {
		t.Fatalf("expected environment from config, got %q", report.Environment)
	}
}

func TestNewContainerRejectsInvalidHealthChecks(t *testing.T) {
	_, err := NewContainer(context.Background(), config.Config{}, memory.NewStore(), Options{
		HealthChecks: []repositories.DependencyCheck{{Name: "events"}},
	})
	if err == nil {
		t.Fatal("expected error for check without func")
	}
}
