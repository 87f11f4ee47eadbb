package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/pagination"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// PromotionHandlers exposes promotion management to admins.
type PromotionHandlers struct {
	promotions services.PromotionAdminService
}

func NewPromotionHandlers(promotions services.PromotionAdminService) *PromotionHandlers {
	return &PromotionHandlers{promotions: promotions}
}

// Routes registers the /promotions endpoints. PUT replaces the whole record.
func (h *PromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPromotions)
	r.Post("/", h.createPromotion)
	r.Get("/{promotionID}", h.getPromotion)
	r.Put("/{promotionID}", h.updatePromotion)
	r.Delete("/{promotionID}", h.deletePromotion)
}

type promotionRequest struct {
	Code          string     `json:"code"`
	Description   string     `json:"description"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	AppliesTo     string     `json:"applies_to"`
	AppliesToIDs  []string   `json:"applies_to_ids"`
	StartAt       *time.Time `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
	IsActive      *bool      `json:"is_active"`
	UsageLimit    *int       `json:"usage_limit"`
	PerUserLimit  *int       `json:"per_user_limit"`
}

func (req promotionRequest) promotion(id string) services.Promotion {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return services.Promotion{
		ID:            id,
		Code:          req.Code,
		Description:   req.Description,
		DiscountType:  domain.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		AppliesTo:     domain.PromotionScope(req.AppliesTo),
		AppliesToIDs:  req.AppliesToIDs,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		IsActive:      active,
		UsageLimit:    req.UsageLimit,
		PerUserLimit:  req.PerUserLimit,
	}
}

type promotionPayload struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	Description   string   `json:"description,omitempty"`
	DiscountType  string   `json:"discount_type"`
	DiscountValue int64    `json:"discount_value"`
	AppliesTo     string   `json:"applies_to"`
	AppliesToIDs  []string `json:"applies_to_ids"`
	StartAt       string   `json:"start_at,omitempty"`
	EndAt         string   `json:"end_at,omitempty"`
	IsActive      bool     `json:"is_active"`
	UsageLimit    *int     `json:"usage_limit"`
	PerUserLimit  *int     `json:"per_user_limit"`
	UsedCount     int      `json:"used_count"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

type promotionResponse struct {
	Promotion promotionPayload `json:"promotion"`
}

type promotionListResponse struct {
	Items      []promotionPayload `json:"items"`
	Pagination paginationPayload  `json:"pagination"`
}

func buildPromotionPayload(p services.Promotion) promotionPayload {
	payload := promotionPayload{
		ID:            p.ID,
		Code:          p.Code,
		Description:   p.Description,
		DiscountType:  string(p.DiscountType),
		DiscountValue: p.DiscountValue,
		AppliesTo:     string(p.AppliesTo),
		AppliesToIDs:  append([]string{}, p.AppliesToIDs...),
		IsActive:      p.IsActive,
		UsageLimit:    p.UsageLimit,
		PerUserLimit:  p.PerUserLimit,
		UsedCount:     p.UsedCount,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
	if p.StartAt != nil {
		payload.StartAt = formatTime(*p.StartAt)
	}
	if p.EndAt != nil {
		payload.EndAt = formatTime(*p.EndAt)
	}
	return payload
}

func (h *PromotionHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.promotions.ListPromotions(ctx, services.ListPromotionsQuery{
		Caller: caller,
		Search: strings.TrimSpace(query.Get("search")),
		Page:   paging.Page,
		Limit:  paging.Limit,
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	resp := promotionListResponse{
		Items: make([]promotionPayload, 0, len(page.Items)),
		Pagination: paginationPayload{
			TotalCount:  page.TotalCount,
			Page:        page.Page,
			Limit:       page.Limit,
			TotalPages:  page.TotalPages,
			HasNextPage: page.HasNextPage,
			HasPrevPage: page.HasPrevPage,
		},
	}
	for _, promotion := range page.Items {
		resp.Items = append(resp.Items, buildPromotionPayload(promotion))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PromotionHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	promotionID, ok := promotionIDParam(w, r)
	if !ok {
		return
	}

	promotion, err := h.promotions.GetPromotion(ctx, services.GetPromotionQuery{Caller: caller, PromotionID: promotionID})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promotion)})
}

func (h *PromotionHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req promotionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	promotion, err := h.promotions.CreatePromotion(ctx, services.UpsertPromotionCommand{
		Caller:    caller,
		Promotion: req.promotion(""),
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, zap.String("promotion_id", promotion.ID))
	w.Header().Set("Location", "/api/v1/promotions/"+promotion.ID)
	writeJSONResponse(w, http.StatusCreated, promotionResponse{Promotion: buildPromotionPayload(promotion)})
}

func (h *PromotionHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	promotionID, ok := promotionIDParam(w, r)
	if !ok {
		return
	}

	var req promotionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	promotion, err := h.promotions.UpdatePromotion(ctx, services.UpsertPromotionCommand{
		Caller:    caller,
		Promotion: req.promotion(promotionID),
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promotion)})
}

func (h *PromotionHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	promotionID, ok := promotionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.promotions.DeletePromotion(ctx, services.DeletePromotionCommand{Caller: caller, PromotionID: promotionID}); err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *PromotionHandlers) begin(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return services.Caller{}, false
	}
	caller, ok := callerFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Caller{}, false
	}
	return caller, true
}

func promotionIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	promotionID := strings.TrimSpace(chi.URLParam(r, "promotionID"))
	if promotionID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "promotion id is required", http.StatusBadRequest))
		return "", false
	}
	requestctx.Annotate(r.Context(), zap.String("promotion_id", promotionID))
	return promotionID, true
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	writeServiceError(ctx, w, err, "promotion_error", "failed to process promotion request")
}
