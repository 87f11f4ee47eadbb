package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/pagination"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventPromotionUpdated = "order.promotion.updated"
	orderEventDeleted          = "order.deleted"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	tracerName = "github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Inventory   InventoryLedger
	Promotions  PromotionResolver
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Metrics     OrderMetrics
	Tracer      trace.Tracer
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	inventory  InventoryLedger
	promotions PromotionResolver
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	metrics    OrderMetrics
	tracer     trace.Tracer
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory ledger is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		inventory:  deps.Inventory,
		promotions: deps.Promotions,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		events:  deps.Events,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (order Order, err error) {
	ctx, done := s.observe(ctx, "get", attribute.String("order.id", query.OrderID))
	defer func() { done(err) }()

	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err = s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !query.Caller.IsAdmin() && order.UserID != query.Caller.UserID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (page domain.Page[Order], err error) {
	ctx, done := s.observe(ctx, "list")
	defer func() { done(err) }()

	filter, err := buildOrderListFilter(query)
	if err != nil {
		return domain.Page[Order]{}, err
	}

	page, err = s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func buildOrderListFilter(query ListOrdersQuery) (repositories.OrderListFilter, error) {
	filter := repositories.OrderListFilter{
		Search:    strings.TrimSpace(query.Search),
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
		Page:      query.Page,
		Limit:     query.Limit,
		SortBy:    domain.OrderSortCreatedAt,
		SortOrder: domain.SortDesc,
	}

	if !query.Caller.IsAdmin() {
		userID := strings.TrimSpace(query.Caller.UserID)
		if userID == "" {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: caller user id is required", ErrPermissionDenied)
		}
		filter.UserID = userID
	}

	for _, raw := range query.Status {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		filter.Status = append(filter.Status, status)
	}

	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return repositories.OrderListFilter{}, fmt.Errorf("%w: start date must not be after end date", ErrOrderInvalidInput)
	}

	switch strings.ToUpper(strings.TrimSpace(query.SortBy)) {
	case "", string(domain.OrderSortCreatedAt), "CREATEDAT", "CREATED_AT":
	case string(domain.OrderSortFinalPrice), "FINALPRICE":
		filter.SortBy = domain.OrderSortFinalPrice
	default:
		return repositories.OrderListFilter{}, fmt.Errorf("%w: unsupported sort field %q", ErrOrderInvalidInput, query.SortBy)
	}

	switch strings.ToLower(strings.TrimSpace(query.SortOrder)) {
	case "", string(domain.SortDesc):
	case string(domain.SortAsc):
		filter.SortOrder = domain.SortAsc
	default:
		return repositories.OrderListFilter{}, fmt.Errorf("%w: unsupported sort order %q", ErrOrderInvalidInput, query.SortOrder)
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = pagination.DefaultLimit
	}
	if filter.Limit > pagination.DefaultMaxLimit {
		filter.Limit = pagination.DefaultMaxLimit
	}
	return filter, nil
}

// observe opens a span for an order operation and returns a completion func
// that records the outcome on the span and in metrics.
func (s *orderService) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "order."+operation, trace.WithAttributes(attrs...))
	started := time.Now()
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(ErrorKindOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("order.outcome", outcome))
		s.metrics.ObserveOrderOperation(operation, outcome, time.Since(started))
		span.End()
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil || alreadyClassified(err) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	// Commit failures surface as raw repository errors.
	return s.mapRepositoryError(s.unitOfWork.RunInTx(ctx, fn))
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) nextOrderItemID() string {
	return orderItemIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) recordStock(direction string, items []OrderItem) {
	for _, item := range items {
		s.metrics.ObserveStockMovement(direction, item.Quantity)
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) ObserveOrderOperation(string, string, time.Duration) {}

func (noopOrderMetrics) ObserveStockMovement(string, int) {}

func itemProductIDs(items []OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func promotionLines(items []OrderItem) []PromotionLine {
	lines := make([]PromotionLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PromotionLine{
			ProductID:  item.ProductID,
			CategoryID: item.Product.CategoryID,
			TotalPrice: item.TotalPrice,
		})
	}
	return lines
}

func valuePtr[T any](v T) *T {
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
