package repositories

import (
	"context"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Promotions() PromotionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary.
// Nested calls with a context already carrying a transaction join it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads products and mutates stock counts.
type ProductRepository interface {
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	// LockByIDs acquires exclusive row locks in ascending id order and returns the
	// products that exist. Missing ids are omitted rather than reported.
	LockByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	// LockByID returns an InventoryError with InventoryErrorStockNotFound when absent.
	LockByID(ctx context.Context, productID string) (domain.Product, error)
	UpdateCount(ctx context.Context, productID string, count int) error
}

// OrderRepository persists orders together with their items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update overwrites order-level fields. Items are immutable after creation.
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// OrderListFilter narrows order listings. Page is 1-based.
type OrderListFilter struct {
	UserID    string
	Status    []domain.OrderStatus
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    domain.OrderSortField
	SortOrder domain.SortOrder
	Page      int
	Limit     int
}

// PromotionRepository stores promotions. Codes are unique in canonical form;
// Insert and Update report a conflict when another promotion holds the code.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	Insert(ctx context.Context, promotion domain.Promotion) error
	// Update replaces every field except CreatedAt and UsedCount.
	Update(ctx context.Context, promotion domain.Promotion) error
	Delete(ctx context.Context, promotionID string) error
	// List orders by creation time, newest first.
	List(ctx context.Context, filter PromotionListFilter) (domain.Page[domain.Promotion], error)
}

// PromotionListFilter matches Search against code and description. Page is 1-based.
type PromotionListFilter struct {
	Search string
	Page   int
	Limit  int
}

// HealthRepository aggregates dependency health information.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
