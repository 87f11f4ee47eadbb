package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/pagination"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// OrderHandlers exposes the order lifecycle to back-office users.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Authentication is applied by the router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Put("/{orderID}/promotion", h.updatePromotion)
}

type createOrderRequest struct {
	Items         []lineItemRequest `json:"items"`
	PromotionCode *string           `json:"promotion_code"`
}

type lineItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type transitionOrderRequest struct {
	Status string `json:"status"`
}

type updatePromotionRequest struct {
	PromotionCode json.RawMessage `json:"promotion_code"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items must not be empty", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Caller:        caller,
		Items:         make([]services.LineItem, 0, len(req.Items)),
		PromotionCode: req.PromotionCode,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.LineItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, zap.String("order_id", order.ID))
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	paging, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	list := services.ListOrdersQuery{
		Caller:    caller,
		Search:    strings.TrimSpace(query.Get("search")),
		Status:    parseFilterValues(query["status"]),
		Page:      paging.Page,
		Limit:     paging.Limit,
		SortBy:    paging.SortBy,
		SortOrder: paging.SortOrder,
	}

	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		ts, err := parseDateParam(raw, false)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start_date must be a date or RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		list.StartDate = &ts
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		ts, err := parseDateParam(raw, true)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "end_date must be a date or RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		list.EndDate = &ts
	}

	page, err := h.orders.ListOrders(ctx, list)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Items: make([]orderPayload, 0, len(page.Items)),
		Pagination: paginationPayload{
			TotalCount:  page.TotalCount,
			Page:        page.Page,
			Limit:       page.Limit,
			TotalPages:  page.TotalPages,
			HasNextPage: page.HasNextPage,
			HasPrevPage: page.HasPrevPage,
		},
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{OrderID: orderID, Caller: caller})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req transitionOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  req.Status,
		Caller:  caller,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req updatePromotionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.PromotionCode) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "promotion_code is required; send null to clear it", http.StatusBadRequest))
		return
	}
	var code *string
	if err := json.Unmarshal(req.PromotionCode, &code); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "promotion_code must be a string or null", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrderPromotion(ctx, services.UpdateOrderPromotionCommand{
		OrderID:       orderID,
		PromotionCode: code,
		Caller:        caller,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{OrderID: orderID, Caller: caller})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// begin checks the service wiring and resolves the caller.
func (h *OrderHandlers) begin(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Caller{}, false
	}
	caller, ok := callerFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Caller{}, false
	}
	return caller, true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	requestctx.Annotate(r.Context(), zap.String("order_id", orderID))
	return orderID, true
}

// errorCodes gives each engine sentinel a stable machine readable code.
var errorCodes = []struct {
	target error
	code   string
}{
	{services.ErrProductsNotFound, "products_not_found"},
	{services.ErrInvalidQuantity, "invalid_quantity"},
	{services.ErrOutOfStock, "out_of_stock"},
	{services.ErrDuplicateLineItem, "duplicate_line_item"},
	{services.ErrPromotionNotFound, "promotion_not_found"},
	{services.ErrPromotionInvalidCode, "promotion_not_found"},
	{services.ErrPromotionInactive, "promotion_inactive"},
	{services.ErrPromotionNotStarted, "promotion_not_started"},
	{services.ErrPromotionExpired, "promotion_expired"},
	{services.ErrPromotionNotApplicable, "promotion_not_applicable"},
	{services.ErrPromotionInvalid, "promotion_invalid"},
	{services.ErrPromotionCodeTaken, "promotion_code_taken"},
	{services.ErrInvalidStatusTransition, "invalid_status_transition"},
	{services.ErrPermissionDenied, "permission_denied"},
	{services.ErrOrderNotFound, "order_not_found"},
	{services.ErrOrderConflict, "order_conflict"},
	{services.ErrOrderInvalidInput, "invalid_request"},
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	writeServiceError(ctx, w, err, "order_error", "failed to process order request")
}

// writeServiceError maps an engine error onto its HTTP status and code.
// Unclassified errors become a 500 carrying fallback.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, fallback, fallbackMsg string) {
	if err == nil {
		return
	}

	var status int
	switch services.ErrorKindOf(err) {
	case services.ErrorKindValidation:
		status = http.StatusBadRequest
	case services.ErrorKindNotFound:
		status = http.StatusNotFound
	case services.ErrorKindPermission:
		status = http.StatusForbidden
	case services.ErrorKindConflict:
		status = http.StatusConflict
	default:
		httpx.WriteError(ctx, w, httpx.NewError(fallback, fallbackMsg, http.StatusInternalServerError))
		return
	}

	code := fallback
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.target) {
			code = candidate.code
			break
		}
	}

	httpErr := httpx.NewError(code, err.Error(), status)
	var (
		stockErr *services.StockError
		fieldErr *domain.PromotionFieldError
	)
	switch {
	case errors.As(err, &stockErr):
		httpErr = httpx.NewError(code, stockErr.Error(), status).WithDetails(map[string]any{
			"product_id":   stockErr.ProductID,
			"product_name": stockErr.ProductName,
			"available":    stockErr.Available,
			"requested":    stockErr.Requested,
		})
	case errors.As(err, &fieldErr):
		httpErr = httpErr.WithDetails(map[string]any{
			"field":  fieldErr.Field,
			"reason": fieldErr.Reason,
		})
	}
	httpx.WriteError(ctx, w, httpErr)
}
