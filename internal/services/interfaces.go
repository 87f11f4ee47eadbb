package services

import (
	"context"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SortOrder          = domain.SortOrder
	Product            = domain.Product
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Promotion          = domain.Promotion
	UserRole           = domain.UserRole
	SystemHealthReport = domain.SystemHealthReport
)

// Caller identifies the authenticated user performing an operation.
type Caller struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == domain.RoleAdmin
}

// OrderService exposes the order lifecycle: creation, queries, transitions and deletion.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.Page[Order], error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdateOrderPromotion(ctx context.Context, cmd UpdateOrderPromotionCommand) (Order, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) (bool, error)
}

// InventoryLedger adjusts product stock. Callers must run it inside a unit of work
// so the row lock taken by Reserve/Release is held until commit.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, quantity int) (int, error)
	Release(ctx context.Context, productID string, quantity int) (int, error)
}

// PromotionResolver looks up promotions by user supplied code.
type PromotionResolver interface {
	Resolve(ctx context.Context, code string) (Promotion, error)
}

// PromotionAdminService manages promotions. Every operation requires an admin caller.
type PromotionAdminService interface {
	ListPromotions(ctx context.Context, query ListPromotionsQuery) (domain.Page[Promotion], error)
	GetPromotion(ctx context.Context, query GetPromotionQuery) (Promotion, error)
	CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeletePromotion(ctx context.Context, cmd DeletePromotionCommand) error
}

// SystemService reports dependency health for /readyz.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// LineItem requests a quantity of a product.
type LineItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand asks the builder to price and persist a new order.
type CreateOrderCommand struct {
	Caller        Caller
	Items         []LineItem
	PromotionCode *string
}

// GetOrderQuery fetches a single order visible to the caller.
type GetOrderQuery struct {
	OrderID string
	Caller  Caller
}

// ListOrdersQuery filters, sorts and paginates orders. Page is 1-based.
type ListOrdersQuery struct {
	Caller    Caller
	Search    string
	Status    []string
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// UpdateOrderStatusCommand requests a status transition.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	Caller  Caller
}

// UpdateOrderPromotionCommand replaces or clears the promotion of a Created order.
// A nil or blank code clears it.
type UpdateOrderPromotionCommand struct {
	OrderID       string
	PromotionCode *string
	Caller        Caller
}

// DeleteOrderCommand removes a Created order and returns its stock.
type DeleteOrderCommand struct {
	OrderID string
	Caller  Caller
}

// ListPromotionsQuery searches code and description. Page is 1-based.
type ListPromotionsQuery struct {
	Caller Caller
	Search string
	Page   int
	Limit  int
}

type GetPromotionQuery struct {
	PromotionID string
	Caller      Caller
}

// UpsertPromotionCommand carries the full promotion. Promotion.ID is ignored
// on create and names the target on update.
type UpsertPromotionCommand struct {
	Promotion Promotion
	Caller    Caller
}

type DeletePromotionCommand struct {
	PromotionID string
	Caller      Caller
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderMetrics records order and stock outcomes. Implementations must be safe for concurrent use.
type OrderMetrics interface {
	ObserveOrderOperation(operation string, outcome string, elapsed time.Duration)
	ObserveStockMovement(direction string, quantity int)
}
