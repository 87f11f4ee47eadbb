package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

type productDocument struct {
	ID          string    `firestore:"-"`
	SKU         string    `firestore:"sku"`
	Name        string    `firestore:"name"`
	ImportPrice int64     `firestore:"importPrice"`
	Count       int       `firestore:"count"`
	CategoryID  string    `firestore:"categoryId"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func decodeProduct(snap *firestore.DocumentSnapshot) (productDocument, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return doc, err
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func newProductDocument(p domain.Product, now time.Time) productDocument {
	doc := productDocument{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		ImportPrice: p.ImportPrice,
		Count:       p.Count,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	return doc
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{
		ID:          d.ID,
		SKU:         d.SKU,
		Name:        d.Name,
		ImportPrice: d.ImportPrice,
		Count:       d.Count,
		CategoryID:  d.CategoryID,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type orderItemDocument struct {
	ID            string `firestore:"id"`
	ProductID     string `firestore:"productId"`
	Quantity      int    `firestore:"quantity"`
	UnitSalePrice int64  `firestore:"unitSalePrice"`
	TotalPrice    int64  `firestore:"totalPrice"`
	ProductSKU    string `firestore:"productSku"`
	ProductName   string `firestore:"productName"`
	CategoryID    string `firestore:"categoryId"`
}

type orderDocument struct {
	ID                   string              `firestore:"-"`
	UserID               string              `firestore:"userId"`
	Status               string              `firestore:"status"`
	FinalPrice           int64               `firestore:"finalPrice"`
	DiscountAmount       int64               `firestore:"discountAmount"`
	AppliedPromotionID   *string             `firestore:"appliedPromotionId"`
	AppliedPromotionCode *string             `firestore:"appliedPromotionCode"`
	Items                []orderItemDocument `firestore:"items"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

func decodeOrder(snap *firestore.DocumentSnapshot) (orderDocument, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return doc, err
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitSalePrice: item.UnitSalePrice,
			TotalPrice:    item.TotalPrice,
			ProductSKU:    item.Product.SKU,
			ProductName:   item.Product.Name,
			CategoryID:    item.Product.CategoryID,
		}
	}
	return orderDocument{
		ID:                   order.ID,
		UserID:               order.UserID,
		Status:               string(order.Status),
		FinalPrice:           order.FinalPrice,
		DiscountAmount:       order.DiscountAmount,
		AppliedPromotionID:   order.AppliedPromotionID,
		AppliedPromotionCode: order.AppliedPromotionCode,
		Items:                items,
		CreatedAt:            order.CreatedAt.UTC(),
		UpdatedAt:            order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ID:            item.ID,
			OrderID:       d.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitSalePrice: item.UnitSalePrice,
			TotalPrice:    item.TotalPrice,
			Product: domain.ProductSummary{
				ID:         item.ProductID,
				SKU:        item.ProductSKU,
				Name:       item.ProductName,
				CategoryID: item.CategoryID,
			},
		}
	}
	return domain.Order{
		ID:                   d.ID,
		UserID:               d.UserID,
		Status:               domain.OrderStatus(d.Status),
		FinalPrice:           d.FinalPrice,
		DiscountAmount:       d.DiscountAmount,
		AppliedPromotionID:   d.AppliedPromotionID,
		AppliedPromotionCode: d.AppliedPromotionCode,
		Items:                items,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
}

type promotionDocument struct {
	ID            string     `firestore:"-"`
	Code          string     `firestore:"code"`
	Description   string     `firestore:"description"`
	DiscountType  string     `firestore:"discountType"`
	DiscountValue int64      `firestore:"discountValue"`
	AppliesTo     string     `firestore:"appliesTo"`
	AppliesToIDs  []string   `firestore:"appliesToIds"`
	StartAt       *time.Time `firestore:"startAt"`
	EndAt         *time.Time `firestore:"endAt"`
	IsActive      bool       `firestore:"isActive"`
	UsageLimit    *int       `firestore:"usageLimit"`
	PerUserLimit  *int       `firestore:"perUserLimit"`
	UsedCount     int        `firestore:"usedCount"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func decodePromotion(snap *firestore.DocumentSnapshot) (promotionDocument, error) {
	var doc promotionDocument
	if err := snap.DataTo(&doc); err != nil {
		return doc, err
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func newPromotionDocument(p domain.Promotion, now time.Time) promotionDocument {
	doc := promotionDocument{
		ID:            p.ID,
		Code:          p.Code,
		Description:   p.Description,
		DiscountType:  string(p.DiscountType),
		DiscountValue: p.DiscountValue,
		AppliesTo:     string(p.AppliesTo),
		AppliesToIDs:  p.AppliesToIDs,
		StartAt:       p.StartAt,
		EndAt:         p.EndAt,
		IsActive:      p.IsActive,
		UsageLimit:    p.UsageLimit,
		PerUserLimit:  p.PerUserLimit,
		UsedCount:     p.UsedCount,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	return doc
}

func (d promotionDocument) toDomain() domain.Promotion {
	return domain.Promotion{
		ID:            d.ID,
		Code:          d.Code,
		Description:   d.Description,
		DiscountType:  domain.DiscountType(d.DiscountType),
		DiscountValue: d.DiscountValue,
		AppliesTo:     domain.PromotionScope(d.AppliesTo),
		AppliesToIDs:  d.AppliesToIDs,
		StartAt:       d.StartAt,
		EndAt:         d.EndAt,
		IsActive:      d.IsActive,
		UsageLimit:    d.UsageLimit,
		PerUserLimit:  d.PerUserLimit,
		UsedCount:     d.UsedCount,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}
