package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// PromotionCodeMaxLength bounds the canonical code length.
const PromotionCodeMaxLength = 50

// ErrInvalidPromotion reports a promotion that breaks a write-time rule.
var ErrInvalidPromotion = errors.New("promotion: invalid promotion")

// CanonicalPromotionCode trims the code, folds full-width characters to ASCII
// and upper-cases it. Stores and lookups both key on this form.
func CanonicalPromotionCode(code string) string {
	folded := width.Fold.String(strings.TrimSpace(code))
	return cases.Upper(language.Und).String(strings.TrimSpace(folded))
}

// Known reports whether t is one of the supported discount types.
func (t DiscountType) Known() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Known reports whether s is one of the supported scopes.
func (s PromotionScope) Known() bool {
	switch s {
	case PromotionAppliesAll, PromotionAppliesProducts, PromotionAppliesCategories:
		return true
	}
	return false
}

// Validate checks the rules every stored promotion must satisfy. Code is
// expected in canonical form already.
func (p Promotion) Validate() error {
	switch {
	case p.Code == "":
		return invalidPromotion("code", "must not be empty")
	case len(p.Code) > PromotionCodeMaxLength:
		return invalidPromotion("code", fmt.Sprintf("must not exceed %d characters", PromotionCodeMaxLength))
	case strings.IndexFunc(p.Code, notCodeRune) >= 0:
		return invalidPromotion("code", "may only contain A-Z, 0-9 and underscores")
	}

	if !p.DiscountType.Known() {
		return invalidPromotion("discount_type", fmt.Sprintf("unknown value %q", p.DiscountType))
	}
	if p.DiscountValue <= 0 {
		return invalidPromotion("discount_value", "must be greater than 0")
	}
	if p.DiscountType == DiscountPercentage && p.DiscountValue > 100 {
		return invalidPromotion("discount_value", "percentage cannot exceed 100")
	}

	if !p.AppliesTo.Known() {
		return invalidPromotion("applies_to", fmt.Sprintf("unknown value %q", p.AppliesTo))
	}
	if p.AppliesTo != PromotionAppliesAll && !slices.ContainsFunc(p.AppliesToIDs, nonBlank) {
		return invalidPromotion("applies_to_ids", "required unless applies_to is ALL")
	}

	if p.StartAt != nil && p.EndAt != nil && !p.StartAt.Before(*p.EndAt) {
		return invalidPromotion("start_at", "must be before end_at")
	}
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return invalidPromotion("usage_limit", "must not be negative")
	}
	if p.PerUserLimit != nil && *p.PerUserLimit < 0 {
		return invalidPromotion("per_user_limit", "must not be negative")
	}
	return nil
}

// PromotionFieldError names the field a validation failure is about.
type PromotionFieldError struct {
	Field  string
	Reason string
}

func (e *PromotionFieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidPromotion, e.Field, e.Reason)
}

func (e *PromotionFieldError) Unwrap() error { return ErrInvalidPromotion }

func invalidPromotion(field, reason string) error {
	return &PromotionFieldError{Field: field, Reason: reason}
}

func notCodeRune(r rune) bool {
	return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
}

func nonBlank(s string) bool { return strings.TrimSpace(s) != "" }
