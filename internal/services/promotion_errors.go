package services

import (
	"errors"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

var (
	// ErrPromotionRepositoryMissing indicates the promotion repository dependency is absent.
	ErrPromotionRepositoryMissing = errors.New("promotion: repository is not configured")
	// ErrPromotionInvalidCode signals the supplied promotion code is blank after normalisation.
	ErrPromotionInvalidCode = errors.New("promotion: invalid promotion code")
	// ErrPromotionNotFound indicates no promotion exists for the provided code.
	ErrPromotionNotFound = errors.New("promotion: promotion code not found")

	ErrPromotionInactive      = errors.New("promotion: promotion is not active")
	ErrPromotionNotStarted    = errors.New("promotion: promotion has not started yet")
	ErrPromotionExpired       = errors.New("promotion: promotion has expired")
	ErrPromotionNotApplicable = errors.New("promotion: promotion does not apply to any items in your order")

	// ErrPromotionInvalid covers promotions that break a write-time rule or
	// carry an unknown scope or discount type.
	ErrPromotionInvalid = domain.ErrInvalidPromotion
	// ErrPromotionCodeTaken reports a code already used by another promotion.
	ErrPromotionCodeTaken = errors.New("promotion: code already exists")
)
