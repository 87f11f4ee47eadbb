package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
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

const promotionIDPrefix = "promo_"

// PromotionAdminServiceDeps bundles collaborators for promotion management.
type PromotionAdminServiceDeps struct {
	Promotions  repositories.PromotionRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Tracer      trace.Tracer
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type promotionAdminService struct {
	repo       repositories.PromotionRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	tracer     trace.Tracer
	logger     func(context.Context, string, map[string]any)
}

// NewPromotionAdminService wires the admin-only promotion management service.
func NewPromotionAdminService(deps PromotionAdminServiceDeps) (PromotionAdminService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	svc := &promotionAdminService{
		repo:       deps.Promotions,
		unitOfWork: deps.UnitOfWork,
		clock:      deps.Clock,
		newID:      deps.IDGenerator,
		tracer:     deps.Tracer,
		logger:     deps.Logger,
	}
	if svc.unitOfWork == nil {
		svc.unitOfWork = noopUnitOfWork{}
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.newID == nil {
		svc.newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(tracerName)
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	return svc, nil
}

func (s *promotionAdminService) ListPromotions(ctx context.Context, query ListPromotionsQuery) (page domain.Page[Promotion], err error) {
	ctx, done := s.span(ctx, "list")
	defer func() { done(err) }()
	if err := requireAdmin(query.Caller); err != nil {
		return domain.Page[Promotion]{}, err
	}

	filter := repositories.PromotionListFilter{
		Search: strings.TrimSpace(query.Search),
		Page:   max(query.Page, 1),
		Limit:  query.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = pagination.DefaultLimit
	}
	filter.Limit = min(filter.Limit, pagination.DefaultMaxLimit)

	page, err = s.repo.List(ctx, filter)
	if err != nil {
		return domain.Page[Promotion]{}, mapPromotionRepositoryError(err)
	}
	return page, nil
}

func (s *promotionAdminService) GetPromotion(ctx context.Context, query GetPromotionQuery) (promotion Promotion, err error) {
	ctx, done := s.span(ctx, "get", attribute.String("promotion.id", query.PromotionID))
	defer func() { done(err) }()
	if err := requireAdmin(query.Caller); err != nil {
		return Promotion{}, err
	}
	id := strings.TrimSpace(query.PromotionID)
	if id == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrOrderInvalidInput)
	}

	promotion, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return Promotion{}, mapPromotionRepositoryError(err)
	}
	return promotion, nil
}

// CreatePromotion stores a new promotion under its canonical code. The id and
// timestamps are assigned here and UsedCount starts at zero.
func (s *promotionAdminService) CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (promotion Promotion, err error) {
	ctx, done := s.span(ctx, "create")
	defer func() { done(err) }()
	if err := requireAdmin(cmd.Caller); err != nil {
		return Promotion{}, err
	}

	now := s.clock().UTC()
	promotion = preparePromotion(cmd.Promotion)
	promotion.ID = promotionIDPrefix + s.newID()
	promotion.UsedCount = 0
	promotion.CreatedAt = now
	promotion.UpdatedAt = now
	if err := promotion.Validate(); err != nil {
		return Promotion{}, err
	}

	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Insert(ctx, promotion)
	})
	if err != nil {
		return Promotion{}, mapPromotionRepositoryError(err)
	}
	s.logger(ctx, "promotion.created", map[string]any{"promotionId": promotion.ID, "code": promotion.Code, "actor": cmd.Caller.UserID})
	return promotion, nil
}

// UpdatePromotion replaces the promotion named by cmd.Promotion.ID. CreatedAt
// and UsedCount are kept from the stored record.
func (s *promotionAdminService) UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (promotion Promotion, err error) {
	ctx, done := s.span(ctx, "update", attribute.String("promotion.id", cmd.Promotion.ID))
	defer func() { done(err) }()
	if err := requireAdmin(cmd.Caller); err != nil {
		return Promotion{}, err
	}

	promotion = preparePromotion(cmd.Promotion)
	if promotion.ID == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrOrderInvalidInput)
	}
	if err := promotion.Validate(); err != nil {
		return Promotion{}, err
	}

	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, promotion.ID)
		if err != nil {
			return err
		}
		promotion.CreatedAt = current.CreatedAt
		promotion.UsedCount = current.UsedCount
		promotion.UpdatedAt = s.clock().UTC()
		return s.repo.Update(ctx, promotion)
	})
	if err != nil {
		return Promotion{}, mapPromotionRepositoryError(err)
	}
	s.logger(ctx, "promotion.updated", map[string]any{"promotionId": promotion.ID, "code": promotion.Code, "actor": cmd.Caller.UserID})
	return promotion, nil
}

// DeletePromotion removes the promotion. Orders that applied it keep their
// recorded code and discount.
func (s *promotionAdminService) DeletePromotion(ctx context.Context, cmd DeletePromotionCommand) (err error) {
	ctx, done := s.span(ctx, "delete", attribute.String("promotion.id", cmd.PromotionID))
	defer func() { done(err) }()
	if err := requireAdmin(cmd.Caller); err != nil {
		return err
	}
	id := strings.TrimSpace(cmd.PromotionID)
	if id == "" {
		return fmt.Errorf("%w: promotion id is required", ErrOrderInvalidInput)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return mapPromotionRepositoryError(err)
	}
	s.logger(ctx, "promotion.deleted", map[string]any{"promotionId": id, "actor": cmd.Caller.UserID})
	return nil
}

func (s *promotionAdminService) span(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "promotion."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func requireAdmin(caller Caller) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: promotions are managed by admins", ErrPermissionDenied)
	}
	return nil
}

// preparePromotion canonicalises the fields a client may send loosely.
func preparePromotion(p Promotion) Promotion {
	p.ID = strings.TrimSpace(p.ID)
	p.Code = domain.CanonicalPromotionCode(p.Code)
	p.Description = strings.TrimSpace(p.Description)
	p.DiscountType = domain.DiscountType(strings.ToUpper(strings.TrimSpace(string(p.DiscountType))))
	p.AppliesTo = domain.PromotionScope(strings.ToUpper(strings.TrimSpace(string(p.AppliesTo))))
	if p.AppliesTo == "" {
		p.AppliesTo = domain.PromotionAppliesAll
	}

	ids := make([]string, 0, len(p.AppliesToIDs))
	for _, id := range p.AppliesToIDs {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if p.AppliesTo == domain.PromotionAppliesAll {
		ids = nil
	}
	p.AppliesToIDs = ids
	return p
}

func mapPromotionRepositoryError(err error) error {
	if err == nil || alreadyClassified(err) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrPromotionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrPromotionCodeTaken, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("promotion: repository unavailable: %w", err)
		}
	}
	return err
}
