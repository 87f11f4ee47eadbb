package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

type stubOrderService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn       func(context.Context, services.GetOrderQuery) (services.Order, error)
	listFn      func(context.Context, services.ListOrdersQuery) (domain.Page[services.Order], error)
	statusFn    func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	promotionFn func(context.Context, services.UpdateOrderPromotionCommand) (services.Order, error)
	deleteFn    func(context.Context, services.DeleteOrderCommand) (bool, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.Page[services.Order]{}, nil
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateOrderPromotion(ctx context.Context, cmd services.UpdateOrderPromotionCommand) (services.Order, error) {
	if s.promotionFn != nil {
		return s.promotionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) (bool, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return false, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(svc services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(svc).Routes)
	return router
}

func orderRequest(method, path string, body string, identity *auth.Identity) *http.Request {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

var (
	saleIdentity  = &auth.Identity{UID: "sale-1", Role: domain.RoleSale}
	adminIdentity = &auth.Identity{UID: "admin-1", Role: domain.RoleAdmin}
)

func sampleOrder() services.Order {
	code := "SAVE10"
	promoID := "promo-1"
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:                   "ord_1",
		UserID:               "sale-1",
		Status:               domain.OrderStatusCreated,
		FinalPrice:           3600,
		DiscountAmount:       400,
		AppliedPromotionID:   &promoID,
		AppliedPromotionCode: &code,
		Items: []services.OrderItem{{
			ID:            "itm_1",
			OrderID:       "ord_1",
			ProductID:     "prod-p",
			Quantity:      4,
			UnitSalePrice: 1000,
			TotalPrice:    4000,
			Product:       domain.ProductSummary{ID: "prod-p", SKU: "P-1", Name: "Widget"},
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var got services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			got = cmd
			return sampleOrder(), nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders",
		`{"items":[{"product_id":"prod-p","quantity":4}],"promotion_code":"SAVE10"}`, saleIdentity))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Caller.UserID != "sale-1" || got.Caller.Role != domain.RoleSale {
		t.Fatalf("unexpected caller %+v", got.Caller)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "prod-p" || got.Items[0].Quantity != 4 {
		t.Fatalf("unexpected items %+v", got.Items)
	}
	if got.PromotionCode == nil || *got.PromotionCode != "SAVE10" {
		t.Fatalf("expected promotion code SAVE10, got %v", got.PromotionCode)
	}

	var body struct {
		Order struct {
			ID                   string `json:"id"`
			Status               string `json:"status"`
			Subtotal             int64  `json:"subtotal"`
			DiscountAmount       int64  `json:"discount_amount"`
			FinalPrice           int64  `json:"final_price"`
			AppliedPromotionCode string `json:"applied_promotion_code"`
			Items                []struct {
				ProductID string `json:"product_id"`
				Product   struct {
					Name string `json:"name"`
				} `json:"product"`
			} `json:"items"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Order.FinalPrice != 3600 || body.Order.DiscountAmount != 400 || body.Order.Subtotal != 4000 {
		t.Fatalf("unexpected pricing %+v", body.Order)
	}
	if body.Order.Status != "Created" || body.Order.AppliedPromotionCode != "SAVE10" {
		t.Fatalf("unexpected order %+v", body.Order)
	}
	if len(body.Order.Items) != 1 || body.Order.Items[0].Product.Name != "Widget" {
		t.Fatalf("unexpected items %+v", body.Order.Items)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord_1" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestOrderHandlersCreateOrderValidation(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			t.Fatal("service must not be called")
			return services.Order{}, nil
		},
	}
	cases := map[string]string{
		"empty body":    "",
		"invalid json":  "{",
		"no items":      `{"items":[]}`,
		"unknown field": `{"items":[{"product_id":"p","quantity":1}],"coupon":"X"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders", body, saleIdentity))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, orderRequest(http.MethodGet, "/orders", "", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"products not found", fmt.Errorf("%w: prod-x", services.ErrProductsNotFound), http.StatusBadRequest, "products_not_found"},
		{"invalid quantity", services.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{"duplicate line", services.ErrDuplicateLineItem, http.StatusBadRequest, "duplicate_line_item"},
		{"promotion expired", services.ErrPromotionExpired, http.StatusBadRequest, "promotion_expired"},
		{"promotion not found", services.ErrPromotionNotFound, http.StatusNotFound, "promotion_not_found"},
		{"forbidden", services.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"transition", services.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{"infrastructure", errors.New("pool closed"), http.StatusInternalServerError, "order_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders",
				`{"items":[{"product_id":"p","quantity":1}]}`, saleIdentity))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestOrderHandlersOutOfStockDetails(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("reserve: %w", &services.StockError{
				ProductID: "prod-p", ProductName: "Widget", Requested: 11, Available: 10,
			})
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders",
		`{"items":[{"product_id":"prod-p","quantity":11}]}`, saleIdentity))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "out_of_stock" || body["product_name"] != "Widget" || body["available"] != float64(10) {
		t.Fatalf("unexpected body %v", body)
	}
	if body["message"] != "insufficient stock for product Widget. available: 10" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	var got services.ListOrdersQuery
	svc := &stubOrderService{
		listFn: func(_ context.Context, q services.ListOrdersQuery) (domain.Page[services.Order], error) {
			got = q
			return domain.NewPage([]services.Order{sampleOrder()}, 11, 2, 5), nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodGet,
		"/orders?page=2&limit=5&search=widget&status=Created,paid&start_date=2025-03-01&end_date=2025-03-31&sort_by=FINAL_PRICE&sort_order=asc",
		"", adminIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Page != 2 || got.Limit != 5 || got.Search != "widget" {
		t.Fatalf("unexpected query %+v", got)
	}
	if len(got.Status) != 2 || got.Status[0] != "Created" || got.Status[1] != "paid" {
		t.Fatalf("unexpected status filter %v", got.Status)
	}
	if got.SortBy != "FINAL_PRICE" || got.SortOrder != "asc" {
		t.Fatalf("unexpected sort %s %s", got.SortBy, got.SortOrder)
	}
	if got.StartDate == nil || !got.StartDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date %v", got.StartDate)
	}
	if got.EndDate == nil || got.EndDate.Day() != 31 || got.EndDate.Hour() != 23 {
		t.Fatalf("expected end date to cover the whole day, got %v", got.EndDate)
	}

	var body struct {
		Items      []map[string]any `json:"items"`
		Pagination struct {
			TotalCount  int  `json:"total_count"`
			TotalPages  int  `json:"total_pages"`
			HasNextPage bool `json:"has_next_page"`
			HasPrevPage bool `json:"has_prev_page"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Pagination.TotalCount != 11 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected list body %+v", body)
	}
	if !body.Pagination.HasNextPage || !body.Pagination.HasPrevPage {
		t.Fatalf("expected both navigation flags, got %+v", body.Pagination)
	}
}

func TestOrderHandlersListOrdersRejectsBadParams(t *testing.T) {
	for _, query := range []string{"page=0", "limit=abc", "start_date=yesterday", "end_date=2025-13-01"} {
		rr := httptest.NewRecorder()
		newOrderRouter(&stubOrderService{}).ServeHTTP(rr, orderRequest(http.MethodGet, "/orders?"+query, "", saleIdentity))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, q services.GetOrderQuery) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, q.OrderID)
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodGet, "/orders/ord_missing", "", saleIdentity))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrderHandlersTransition(t *testing.T) {
	var got services.UpdateOrderStatusCommand
	svc := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders/ord_1:transition", `{"status":"Cancelled"}`, saleIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord_1" || got.Status != "Cancelled" || got.Caller.UserID != "sale-1" {
		t.Fatalf("unexpected command %+v", got)
	}

	rr = httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, orderRequest(http.MethodPost, "/orders/ord_1:transition", `{"status":" "}`, saleIdentity))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank status, got %d", rr.Code)
	}
}

func TestOrderHandlersUpdatePromotion(t *testing.T) {
	var got []services.UpdateOrderPromotionCommand
	svc := &stubOrderService{
		promotionFn: func(_ context.Context, cmd services.UpdateOrderPromotionCommand) (services.Order, error) {
			got = append(got, cmd)
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodPut, "/orders/ord_1/promotion", `{"promotion_code":"SAVE10"}`, saleIdentity))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodPut, "/orders/ord_1/promotion", `{"promotion_code":null}`, saleIdentity))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when clearing, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodPut, "/orders/ord_1/promotion", `{}`, saleIdentity))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when promotion_code is absent, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodPut, "/orders/ord_1/promotion", `{"promotion_code":5}`, saleIdentity))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a numeric code, got %d", rr.Code)
	}

	if len(got) != 2 {
		t.Fatalf("expected two service calls, got %d", len(got))
	}
	if got[0].PromotionCode == nil || *got[0].PromotionCode != "SAVE10" {
		t.Fatalf("expected SAVE10, got %v", got[0].PromotionCode)
	}
	if got[1].PromotionCode != nil {
		t.Fatalf("expected nil code for null, got %v", *got[1].PromotionCode)
	}
}

func TestOrderHandlersDeleteOrder(t *testing.T) {
	svc := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) (bool, error) {
			if !cmd.Caller.IsAdmin() {
				return false, services.ErrPermissionDenied
			}
			return true, nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodDelete, "/orders/ord_1", "", adminIdentity))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || !body["deleted"] {
		t.Fatalf("expected deleted=true, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, orderRequest(http.MethodDelete, "/orders/ord_1", "", saleIdentity))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sale role, got %d", rr.Code)
	}
}
