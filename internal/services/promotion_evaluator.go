package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// PromotionLine is the part of an order line the evaluator needs to decide applicability.
type PromotionLine struct {
	ProductID  string
	CategoryID string
	TotalPrice int64
}

// PromotionDiscount is the evaluated discount for an order.
type PromotionDiscount struct {
	Amount      int64
	PromotionID string
	Code        string
}

// EvaluatePromotion validates a promotion against the order lines at asOf and
// returns the discount. It performs no I/O and the result is in [0, subtotal].
func EvaluatePromotion(promotion Promotion, lines []PromotionLine, subtotal int64, asOf time.Time) (PromotionDiscount, error) {
	if !promotion.IsActive {
		return PromotionDiscount{}, fmt.Errorf("%w: %s", ErrPromotionInactive, promotion.Code)
	}
	if promotion.StartAt != nil && asOf.Before(*promotion.StartAt) {
		return PromotionDiscount{}, fmt.Errorf("%w: %s starts at %s", ErrPromotionNotStarted, promotion.Code, promotion.StartAt.UTC().Format(time.RFC3339))
	}
	if promotion.EndAt != nil && asOf.After(*promotion.EndAt) {
		return PromotionDiscount{}, fmt.Errorf("%w: %s ended at %s", ErrPromotionExpired, promotion.Code, promotion.EndAt.UTC().Format(time.RFC3339))
	}
	applies, err := promotionApplies(promotion, lines)
	if err != nil {
		return PromotionDiscount{}, err
	}
	if !applies {
		return PromotionDiscount{}, fmt.Errorf("%w: %s", ErrPromotionNotApplicable, promotion.Code)
	}

	amount, err := discountAmount(promotion, subtotal)
	if err != nil {
		return PromotionDiscount{}, err
	}
	return PromotionDiscount{
		Amount:      amount,
		PromotionID: promotion.ID,
		Code:        promotion.Code,
	}, nil
}

func promotionApplies(promotion Promotion, lines []PromotionLine) (bool, error) {
	switch promotion.AppliesTo {
	case domain.PromotionAppliesAll:
		return true, nil
	case domain.PromotionAppliesProducts:
		return slices.ContainsFunc(lines, func(line PromotionLine) bool {
			return slices.Contains(promotion.AppliesToIDs, line.ProductID)
		}), nil
	case domain.PromotionAppliesCategories:
		return slices.ContainsFunc(lines, func(line PromotionLine) bool {
			return line.CategoryID != "" && slices.Contains(promotion.AppliesToIDs, line.CategoryID)
		}), nil
	default:
		return false, fmt.Errorf("%w: %s has unknown scope %q", ErrPromotionInvalid, promotion.Code, promotion.AppliesTo)
	}
}

func discountAmount(promotion Promotion, subtotal int64) (int64, error) {
	var amount int64
	switch promotion.DiscountType {
	case domain.DiscountPercentage:
		amount = roundHalfAwayFromZero(subtotal*promotion.DiscountValue, 100)
	case domain.DiscountFixed:
		amount = promotion.DiscountValue
	default:
		return 0, fmt.Errorf("%w: %s has unknown discount type %q", ErrPromotionInvalid, promotion.Code, promotion.DiscountType)
	}
	if subtotal <= 0 {
		return 0, nil
	}
	return max(0, min(amount, subtotal)), nil
}

func roundHalfAwayFromZero(numerator, denominator int64) int64 {
	half := denominator / 2
	if numerator < 0 {
		return (numerator - half) / denominator
	}
	return (numerator + half) / denominator
}
