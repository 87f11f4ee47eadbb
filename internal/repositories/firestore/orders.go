package firestore

import (
	"context"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	pfirestore "github.com/hoangphuc3604/my-shop-backend/internal/platform/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

type orderRepository struct{ r *Registry }

// Insert creates the order document. An existing id fails with a conflict,
// inside a transaction at commit time.
func (o *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := o.r.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	if state, ok := txStateFrom(ctx); ok {
		return pfirestore.WrapError("orders.insert", state.tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

// Update rewrites order-level fields and leaves the embedded items alone.
func (o *orderRepository) Update(ctx context.Context, order domain.Order) error {
	ref, err := o.r.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "finalPrice", Value: order.FinalPrice},
		{Path: "discountAmount", Value: order.DiscountAmount},
		{Path: "appliedPromotionId", Value: order.AppliedPromotionID},
		{Path: "appliedPromotionCode", Value: order.AppliedPromotionCode},
		{Path: "updatedAt", Value: order.UpdatedAt.UTC()},
	}
	if state, ok := txStateFrom(ctx); ok {
		return pfirestore.WrapError("orders.update", state.tx.Update(ref, updates))
	}
	_, err = ref.Update(ctx, updates)
	return pfirestore.WrapError("orders.update", err)
}

func (o *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := o.r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

func (o *orderRepository) Delete(ctx context.Context, orderID string) error {
	ref, err := o.r.orders.Doc(ctx, orderID)
	if err != nil {
		return err
	}
	if state, ok := txStateFrom(ctx); ok {
		return pfirestore.WrapError("orders.delete", state.tx.Delete(ref, firestore.Exists))
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("orders.delete", err)
}

// List pushes the owner and status filters to Firestore and applies the date
// range, search, sort and paging in memory.
func (o *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	docs, err := o.r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, len(filter.Status))
			for i, status := range filter.Status {
				statuses[i] = string(status)
			}
			q = q.Where("status", "in", statuses)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.toDomain()
		if search != "" && !strings.Contains(strings.ToLower(string(order.Status)), search) {
			continue
		}
		if filter.StartDate != nil && order.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && order.CreatedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, order)
	}

	slices.SortStableFunc(matched, func(a, b domain.Order) int {
		cmp := a.CreatedAt.Compare(b.CreatedAt)
		if filter.SortBy == domain.OrderSortFinalPrice {
			switch {
			case a.FinalPrice < b.FinalPrice:
				cmp = -1
			case a.FinalPrice > b.FinalPrice:
				cmp = 1
			default:
				cmp = 0
			}
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if filter.SortOrder == domain.SortAsc {
			return cmp
		}
		return -cmp
	})

	limit := max(filter.Limit, 1)
	page := max(filter.Page, 1)
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	return domain.NewPage(slices.Clone(matched[start:end]), len(matched), page, limit), nil
}
