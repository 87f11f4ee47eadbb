package handlers

import (
	"strings"

	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items      []orderPayload    `json:"items"`
	Pagination paginationPayload `json:"pagination"`
}

type paginationPayload struct {
	TotalCount  int  `json:"total_count"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

type orderPayload struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	Status               string             `json:"status"`
	Subtotal             int64              `json:"subtotal"`
	DiscountAmount       int64              `json:"discount_amount"`
	FinalPrice           int64              `json:"final_price"`
	AppliedPromotionID   *string            `json:"applied_promotion_id"`
	AppliedPromotionCode *string            `json:"applied_promotion_code"`
	Items                []orderItemPayload `json:"items"`
	CreatedAt            string             `json:"created_at"`
	UpdatedAt            string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID            string                `json:"id"`
	ProductID     string                `json:"product_id"`
	Quantity      int                   `json:"quantity"`
	UnitSalePrice int64                 `json:"unit_sale_price"`
	TotalPrice    int64                 `json:"total_price"`
	Product       orderItemProductField `json:"product"`
}

type orderItemProductField struct {
	ID         string `json:"id"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                   strings.TrimSpace(order.ID),
		UserID:               strings.TrimSpace(order.UserID),
		Status:               string(order.Status),
		Subtotal:             order.Subtotal(),
		DiscountAmount:       order.DiscountAmount,
		FinalPrice:           order.FinalPrice,
		AppliedPromotionID:   cloneStringPointer(order.AppliedPromotionID),
		AppliedPromotionCode: cloneStringPointer(order.AppliedPromotionCode),
		Items:                make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		productID := item.ProductID
		if productID == "" {
			productID = item.Product.ID
		}
		payload.Items = append(payload.Items, orderItemPayload{
			ID:            item.ID,
			ProductID:     productID,
			Quantity:      item.Quantity,
			UnitSalePrice: item.UnitSalePrice,
			TotalPrice:    item.TotalPrice,
			Product: orderItemProductField{
				ID:         productID,
				SKU:        item.Product.SKU,
				Name:       item.Product.Name,
				CategoryID: item.Product.CategoryID,
			},
		})
	}
	return payload
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
