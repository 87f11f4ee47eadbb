package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// Paid and Cancelled have no outgoing edges.
var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusCreated: {domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderStatusCancelled},
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (order Order, err error) {
	ctx, done := s.observe(ctx, "transition",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", cmd.Status),
	)
	defer func() { done(err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.now()
	var previous OrderStatus

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadOrderForCaller(txCtx, orderID, cmd.Caller)
		if err != nil {
			return err
		}
		previous = current.Status
		if err := checkTransition(current.Status, target); err != nil {
			return err
		}
		order = current
		if current.Status == target {
			return nil
		}

		if target == domain.OrderStatusCancelled {
			if err := s.releaseItems(txCtx, order.Items); err != nil {
				return err
			}
		}

		order.Status = target
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if previous == order.Status {
		return order, nil
	}

	if order.Status == domain.OrderStatusCancelled {
		s.recordStock("release", order.Items)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Caller.UserID,
		OccurredAt:     now,
	})

	return order, nil
}

// UpdateOrderPromotion replaces the promotion on a Created order and recomputes
// the discount against its existing lines.
func (s *orderService) UpdateOrderPromotion(ctx context.Context, cmd UpdateOrderPromotionCommand) (order Order, err error) {
	ctx, done := s.observe(ctx, "update_promotion", attribute.String("order.id", cmd.OrderID))
	defer func() { done(err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	code := ""
	if cmd.PromotionCode != nil {
		code = strings.TrimSpace(*cmd.PromotionCode)
	}

	now := s.now()
	var previousCode string

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadOrderForCaller(txCtx, orderID, cmd.Caller)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusCreated {
			return fmt.Errorf("%w: promotion can only change while the order is %s", ErrInvalidStatusTransition, domain.OrderStatusCreated)
		}
		previousCode = derefString(current.AppliedPromotionCode)

		subtotal := current.Subtotal()
		var discount PromotionDiscount
		if code != "" {
			items, err := s.refreshCategories(txCtx, current.Items)
			if err != nil {
				return err
			}
			discount, err = s.evaluatePromotion(txCtx, code, items, subtotal, now)
			if err != nil {
				return err
			}
		}

		order = current
		order.DiscountAmount = discount.Amount
		order.FinalPrice = subtotal - discount.Amount
		order.AppliedPromotionID = nil
		order.AppliedPromotionCode = nil
		if discount.PromotionID != "" {
			order.AppliedPromotionID = valuePtr(discount.PromotionID)
			order.AppliedPromotionCode = valuePtr(discount.Code)
		}
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPromotionUpdated,
		OrderID:        order.ID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Caller.UserID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"previousPromotionCode": previousCode,
			"promotionCode":         derefString(order.AppliedPromotionCode),
			"discountAmount":        order.DiscountAmount,
			"finalPrice":            order.FinalPrice,
		},
	})
	return order, nil
}

// DeleteOrder releases the stock of a Created order and removes it with its items. Admin only.
func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) (deleted bool, err error) {
	ctx, done := s.observe(ctx, "delete", attribute.String("order.id", cmd.OrderID))
	defer func() { done(err) }()

	if !cmd.Caller.IsAdmin() {
		return false, fmt.Errorf("%w: only admin can delete orders", ErrPermissionDenied)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return false, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var order Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Status != domain.OrderStatusCreated {
			return fmt.Errorf("%w: can only delete orders with status %q", ErrInvalidStatusTransition, domain.OrderStatusCreated)
		}
		if err := s.releaseItems(txCtx, current.Items); err != nil {
			return err
		}
		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return false, err
	}

	s.recordStock("release", order.Items)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventDeleted,
		OrderID:        order.ID,
		PreviousStatus: string(order.Status),
		ActorID:        cmd.Caller.UserID,
		OccurredAt:     s.now(),
		Metadata: map[string]any{
			"productIds": itemProductIDs(order.Items),
		},
	})
	return true, nil
}

// loadOrderForCaller reads the order inside the current unit of work and enforces owner-or-admin access.
func (s *orderService) loadOrderForCaller(ctx context.Context, orderID string, caller Caller) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !caller.IsAdmin() && order.UserID != caller.UserID {
		return Order{}, fmt.Errorf("%w: only the owner or an admin can update order %s", ErrPermissionDenied, orderID)
	}
	return order, nil
}

// releaseItems locks every product of the order in id order, then returns each line to stock.
func (s *orderService) releaseItems(ctx context.Context, items []OrderItem) error {
	if _, err := s.products.LockByIDs(ctx, itemProductIDs(items)); err != nil {
		return s.mapRepositoryError(err)
	}
	for _, item := range items {
		if _, err := s.inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// refreshCategories overlays current product categories on the item snapshots so
// category-scoped promotions see today's catalog.
func (s *orderService) refreshCategories(ctx context.Context, items []OrderItem) ([]OrderItem, error) {
	products, err := s.products.FindByIDs(ctx, itemProductIDs(items))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	categories := make(map[string]string, len(products))
	for _, product := range products {
		categories[product.ID] = product.CategoryID
	}
	refreshed := slices.Clone(items)
	for i := range refreshed {
		if category, ok := categories[refreshed[i].ProductID]; ok {
			refreshed[i].Product.CategoryID = category
		}
	}
	return refreshed, nil
}

func checkTransition(current, target OrderStatus) error {
	if current.IsTerminal() {
		return fmt.Errorf("%w: order status is final and cannot be changed", ErrInvalidStatusTransition)
	}
	if !canTransition(current, target) {
		return fmt.Errorf("%w: created orders can only transition to %s or %s", ErrInvalidStatusTransition, domain.OrderStatusPaid, domain.OrderStatusCancelled)
	}
	return nil
}

func canTransition(current, target OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
