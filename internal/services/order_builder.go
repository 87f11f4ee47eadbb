package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// CreateOrder prices the requested lines, applies the optional promotion and
// reserves stock. The order rows and every stock decrement commit together or not at all.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order Order, err error) {
	ctx, done := s.observe(ctx, "create", attribute.Int("order.lines", len(cmd.Items)))
	defer func() { done(err) }()

	userID := strings.TrimSpace(cmd.Caller.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: caller user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line item is required", ErrOrderInvalidInput)
	}
	productIDs, err := distinctProductIDs(cmd.Items)
	if err != nil {
		return Order{}, err
	}

	promotionCode := ""
	if cmd.PromotionCode != nil {
		promotionCode = strings.TrimSpace(*cmd.PromotionCode)
	}

	now := s.now()
	orderID := s.nextOrderID()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		products, err := s.products.LockByIDs(txCtx, productIDs)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		byID := make(map[string]Product, len(products))
		for _, product := range products {
			byID[product.ID] = product
		}
		if missing := missingProductIDs(productIDs, byID); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrProductsNotFound, strings.Join(missing, ", "))
		}

		items := make([]OrderItem, 0, len(cmd.Items))
		var subtotal int64
		for _, line := range cmd.Items {
			product := byID[strings.TrimSpace(line.ProductID)]
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: got %d for product %s", ErrInvalidQuantity, line.Quantity, product.ID)
			}
			if line.Quantity > product.Count {
				return newStockError(product, line.Quantity)
			}
			total := product.ImportPrice * int64(line.Quantity)
			items = append(items, OrderItem{
				ID:            s.nextOrderItemID(),
				OrderID:       orderID,
				ProductID:     product.ID,
				Quantity:      line.Quantity,
				UnitSalePrice: product.ImportPrice,
				TotalPrice:    total,
				Product:       product.Summary(),
			})
			subtotal += total
		}

		var discount PromotionDiscount
		if promotionCode != "" {
			discount, err = s.evaluatePromotion(txCtx, promotionCode, items, subtotal, now)
			if err != nil {
				return err
			}
		}

		order = Order{
			ID:             orderID,
			UserID:         userID,
			Status:         domain.OrderStatusCreated,
			FinalPrice:     subtotal - discount.Amount,
			DiscountAmount: discount.Amount,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if discount.PromotionID != "" {
			order.AppliedPromotionID = valuePtr(discount.PromotionID)
			order.AppliedPromotionCode = valuePtr(discount.Code)
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		for _, item := range items {
			if _, err := s.inventory.Reserve(txCtx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordStock("reserve", order.Items)
	s.logger(ctx, "order.created", map[string]any{
		"orderId":    order.ID,
		"userId":     order.UserID,
		"finalPrice": order.FinalPrice,
		"discount":   order.DiscountAmount,
		"lines":      len(order.Items),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"finalPrice":     order.FinalPrice,
			"discountAmount": order.DiscountAmount,
			"promotionCode":  derefString(order.AppliedPromotionCode),
			"productIds":     itemProductIDs(order.Items),
		},
	})

	return order, nil
}

// evaluatePromotion resolves the code and runs the pure evaluator against the priced lines.
func (s *orderService) evaluatePromotion(ctx context.Context, code string, items []OrderItem, subtotal int64, asOf time.Time) (PromotionDiscount, error) {
	if s.promotions == nil {
		return PromotionDiscount{}, ErrPromotionRepositoryMissing
	}
	promotion, err := s.promotions.Resolve(ctx, code)
	if err != nil {
		return PromotionDiscount{}, err
	}
	return EvaluatePromotion(promotion, promotionLines(items), subtotal, asOf)
}

func distinctProductIDs(items []LineItem) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: line item product id is required", ErrOrderInvalidInput)
		}
		if slices.Contains(ids, id) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLineItem, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func missingProductIDs(requested []string, found map[string]Product) []string {
	var missing []string
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
