package domain

import (
	"strings"
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// UserRole enumerates the back-office roles allowed to operate on orders.
type UserRole string

const (
	// RoleAdmin may read, update and delete every order.
	RoleAdmin UserRole = "admin"
	// RoleSale may create orders and manage the ones they own.
	RoleSale UserRole = "sale"
)

// ParseUserRole normalises a role claim. Unknown values return false.
func ParseUserRole(value string) (UserRole, bool) {
	switch UserRole(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSale:
		return RoleSale, true
	default:
		return "", false
	}
}

// Product is a sellable item whose Count is the on-hand stock.
type Product struct {
	ID          string
	SKU         string
	Name        string
	ImportPrice int64
	Count       int
	CategoryID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSummary is the product snapshot embedded in order items.
type ProductSummary struct {
	ID         string
	SKU        string
	Name       string
	CategoryID string
}

// Summary returns the product snapshot carried by order items.
func (p Product) Summary() ProductSummary {
	return ProductSummary{
		ID:         p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		CategoryID: p.CategoryID,
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusCreated is the initial, mutable state.
	OrderStatusCreated OrderStatus = "Created"
	// OrderStatusPaid is terminal.
	OrderStatusPaid OrderStatus = "Paid"
	// OrderStatusCancelled is terminal; stock has been returned.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// ParseOrderStatus matches a status name case-insensitively.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "created":
		return OrderStatusCreated, true
	case "paid":
		return OrderStatusPaid, true
	case "cancelled", "canceled":
		return OrderStatusCancelled, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// Order is a priced, stock-backed request for products.
type Order struct {
	ID                   string
	UserID               string
	Status               OrderStatus
	FinalPrice           int64
	DiscountAmount       int64
	AppliedPromotionID   *string
	AppliedPromotionCode *string
	Items                []OrderItem
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Subtotal sums the line totals before any discount.
func (o Order) Subtotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.TotalPrice
	}
	return total
}

// OrderItem is a single product line. Prices are captured at creation time.
type OrderItem struct {
	ID            string
	OrderID       string
	ProductID     string
	Quantity      int
	UnitSalePrice int64
	TotalPrice    int64
	Product       ProductSummary
}

// DiscountType selects how a promotion value is interpreted.
type DiscountType string

const (
	// DiscountPercentage treats the value as a percentage of the subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed treats the value as an absolute amount.
	DiscountFixed DiscountType = "FIXED"
)

// PromotionScope restricts which order lines make a promotion applicable.
type PromotionScope string

const (
	PromotionAppliesAll        PromotionScope = "ALL"
	PromotionAppliesProducts   PromotionScope = "PRODUCTS"
	PromotionAppliesCategories PromotionScope = "CATEGORIES"
)

// Promotion is a discount rule identified by a unique code.
// UsageLimit, PerUserLimit and UsedCount are stored but not enforced.
type Promotion struct {
	ID            string
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue int64
	AppliesTo     PromotionScope
	AppliesToIDs  []string
	StartAt       *time.Time
	EndAt         *time.Time
	IsActive      bool
	UsageLimit    *int
	PerUserLimit  *int
	UsedCount     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderSortField selects the ordering column for order listings.
type OrderSortField string

const (
	OrderSortCreatedAt  OrderSortField = "CREATED_TIME"
	OrderSortFinalPrice OrderSortField = "FINAL_PRICE"
)

// Page packages offset-paginated list results.
type Page[T any] struct {
	Items       []T
	TotalCount  int
	Page        int
	Limit       int
	TotalPages  int
	HasNextPage bool
	HasPrevPage bool
}

// NewPage computes the navigation fields for a page of results.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{
		Items:       items,
		TotalCount:  total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthReport aggregates dependency checks for readiness checks.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SystemHealthCheck is the outcome of probing a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}
