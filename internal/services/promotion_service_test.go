package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// stubPromotionRepository only answers lookups by code.
type stubPromotionRepository struct {
	repositories.PromotionRepository
	promotion domain.Promotion
	err       error
	lastCode  string
}

func (s *stubPromotionRepository) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	s.lastCode = code
	if s.err != nil {
		return domain.Promotion{}, s.err
	}
	return s.promotion, nil
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "repo error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func TestPromotionServiceResolveCanonicalisesCode(t *testing.T) {
	repo := &stubPromotionRepository{promotion: domain.Promotion{ID: "promo_1", Code: "SAVE10"}}
	svc, err := NewPromotionService(PromotionServiceDeps{Promotions: repo})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}

	promo, err := svc.Resolve(context.Background(), "  ｓａｖｅ１０ ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if promo.ID != "promo_1" {
		t.Fatalf("unexpected promotion %+v", promo)
	}
	if repo.lastCode != "SAVE10" {
		t.Fatalf("expected canonical lookup SAVE10, got %q", repo.lastCode)
	}
}

func TestPromotionServiceResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		repoErr error
		want    error
	}{
		{name: "blank", code: "   ", want: ErrPromotionInvalidCode},
		{name: "not found", code: "nope", repoErr: &stubRepoError{notFound: true}, want: ErrPromotionNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewPromotionService(PromotionServiceDeps{Promotions: &stubPromotionRepository{err: tc.repoErr}})
			if err != nil {
				t.Fatalf("NewPromotionService: %v", err)
			}
			_, err = svc.Resolve(context.Background(), tc.code)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	unavailable := &stubRepoError{unavailable: true}
	svc, _ := NewPromotionService(PromotionServiceDeps{Promotions: &stubPromotionRepository{err: unavailable}})
	_, err := svc.Resolve(context.Background(), "x")
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
	if ErrorKindOf(err) != ErrorKindUnknown {
		t.Fatalf("expected infrastructure error to be unclassified, got %q", ErrorKindOf(err))
	}
}

func TestNewPromotionServiceRequiresRepository(t *testing.T) {
	if _, err := NewPromotionService(PromotionServiceDeps{}); !errors.Is(err, ErrPromotionRepositoryMissing) {
		t.Fatalf("expected ErrPromotionRepositoryMissing, got %v", err)
	}
}
