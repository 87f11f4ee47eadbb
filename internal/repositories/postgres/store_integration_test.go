//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("API_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("API_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, Config{URL: url, MaxConns: 16})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.Pool().Exec(ctx, `TRUNCATE order_items, orders, promotions, products, idempotency_keys`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := store.Seed(ctx, repositories.SeedData{
		Products: []domain.Product{
			{ID: "prod_p", SKU: "P", Name: "Product P", ImportPrice: 1000, Count: 10, CategoryID: "cat_tools"},
			{ID: "prod_q", SKU: "Q", Name: "Product Q", ImportPrice: 250, Count: 3, CategoryID: "cat_parts"},
		},
		Promotions: []domain.Promotion{
			{ID: "promo_save10", Code: "SAVE10", DiscountType: domain.DiscountPercentage, DiscountValue: 10, AppliesTo: domain.PromotionAppliesAll, IsActive: true},
		},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func newTestOrderService(t *testing.T, store *Store) services.OrderService {
	t.Helper()
	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{Products: store.Products()})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	promotions, err := services.NewPromotionService(services.PromotionServiceDeps{Promotions: store.Promotions()})
	if err != nil {
		t.Fatalf("promotions: %v", err)
	}
	svc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     store.Orders(),
		Products:   store.Products(),
		Inventory:  ledger,
		Promotions: promotions,
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}
	return svc
}

func stockOf(t *testing.T, store *Store, productID string) int {
	t.Helper()
	products, err := store.Products().FindByIDs(context.Background(), []string{productID})
	if err != nil || len(products) != 1 {
		t.Fatalf("find %s: %v", productID, err)
	}
	return products[0].Count
}

func TestOrderLifecycleIntegration(t *testing.T) {
	store := openTestStore(t)
	svc := newTestOrderService(t, store)
	ctx := context.Background()
	caller := services.Caller{UserID: "user_1", Role: domain.RoleSale}
	code := "save10"

	order, err := svc.CreateOrder(ctx, services.CreateOrderCommand{
		Caller:        caller,
		Items:         []services.LineItem{{ProductID: "prod_p", Quantity: 2}, {ProductID: "prod_q", Quantity: 1}},
		PromotionCode: &code,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.FinalPrice != 2025 || order.DiscountAmount != 225 {
		t.Fatalf("unexpected totals final=%d discount=%d", order.FinalPrice, order.DiscountAmount)
	}
	if stockOf(t, store, "prod_p") != 8 || stockOf(t, store, "prod_q") != 2 {
		t.Fatal("stock not reserved")
	}

	loaded, err := store.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(loaded.Items) != 2 || loaded.Items[0].ProductID != "prod_p" || loaded.Items[0].Product.Name != "Product P" {
		t.Fatalf("unexpected items %+v", loaded.Items)
	}

	if _, err := svc.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{OrderID: order.ID, Status: "Cancelled", Caller: caller}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if stockOf(t, store, "prod_p") != 10 || stockOf(t, store, "prod_q") != 3 {
		t.Fatal("stock not released on cancel")
	}

	_, err = svc.CreateOrder(ctx, services.CreateOrderCommand{
		Caller: caller,
		Items:  []services.LineItem{{ProductID: "prod_p", Quantity: 1}, {ProductID: "prod_q", Quantity: 4}},
	})
	var stockErr *services.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockOf(t, store, "prod_p") != 10 {
		t.Fatal("failed create must roll back earlier reservations")
	}

	page, err := svc.ListOrders(ctx, services.ListOrdersQuery{Caller: caller, Status: []string{"cancelled"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 1 || page.Items[0].ID != order.ID {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestConcurrentReservationsIntegration(t *testing.T) {
	store := openTestStore(t)
	svc := newTestOrderService(t, store)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, services.CreateOrderCommand{
				Caller: services.Caller{UserID: "user_c", Role: domain.RoleSale},
				Items:  []services.LineItem{{ProductID: "prod_q", Quantity: 1}, {ProductID: "prod_p", Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, services.ErrOutOfStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("expected 3 successful orders, got %d", successes)
	}
	if stockOf(t, store, "prod_q") != 0 || stockOf(t, store, "prod_p") != 7 {
		t.Fatal("stock not conserved")
	}
}

func TestPromotionManagementIntegration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	admin := services.Caller{UserID: "admin_1", Role: domain.RoleAdmin}
	svc, err := services.NewPromotionAdminService(services.PromotionAdminServiceDeps{
		Promotions: store.Promotions(),
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("promotion admin: %v", err)
	}

	created, err := svc.CreatePromotion(ctx, services.UpsertPromotionCommand{Caller: admin, Promotion: domain.Promotion{
		Code: "tools_5", Description: "tools", DiscountType: domain.DiscountFixed, DiscountValue: 500,
		AppliesTo: domain.PromotionAppliesCategories, AppliesToIDs: []string{"cat_tools"}, IsActive: true,
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreatePromotion(ctx, services.UpsertPromotionCommand{Caller: admin, Promotion: domain.Promotion{
		Code: "SAVE10", DiscountType: domain.DiscountFixed, DiscountValue: 1, IsActive: true,
	}}); !errors.Is(err, services.ErrPromotionCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	created.DiscountValue = 750
	if _, err := svc.UpdatePromotion(ctx, services.UpsertPromotionCommand{Caller: admin, Promotion: created}); err != nil {
		t.Fatalf("update: %v", err)
	}
	page, err := svc.ListPromotions(ctx, services.ListPromotionsQuery{Caller: admin, Search: "tools"})
	if err != nil || page.TotalCount != 1 || page.Items[0].DiscountValue != 750 {
		t.Fatalf("list: %+v %v", page, err)
	}
	if err := svc.DeletePromotion(ctx, services.DeletePromotionCommand{Caller: admin, PromotionID: created.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetPromotion(ctx, services.GetPromotionQuery{Caller: admin, PromotionID: created.ID}); !errors.Is(err, services.ErrPromotionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
