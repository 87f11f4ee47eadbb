package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// PromotionServiceDeps bundles dependencies required to construct a PromotionResolver.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
}

type promotionService struct {
	repo repositories.PromotionRepository
}

// NewPromotionService wires a PromotionResolver backed by the provided repository.
func NewPromotionService(deps PromotionServiceDeps) (PromotionResolver, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	return &promotionService{repo: deps.Promotions}, nil
}

func (s *promotionService) Resolve(ctx context.Context, code string) (Promotion, error) {
	if s == nil || s.repo == nil {
		return Promotion{}, ErrPromotionRepositoryMissing
	}

	normalized := domain.CanonicalPromotionCode(code)
	if normalized == "" {
		return Promotion{}, ErrPromotionInvalidCode
	}

	promotion, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionNotFound, normalized)
			case repoErr.IsUnavailable():
				return Promotion{}, fmt.Errorf("promotion: repository unavailable: %w", err)
			}
		}
		return Promotion{}, err
	}
	return promotion, nil
}
