package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanonicalPromotionCode(t *testing.T) {
	tests := map[string]string{
		" save10 ":    "SAVE10",
		"ｓａｖｅ１０":      "SAVE10",
		"  ＳＰＲＩＮＧ_２ ": "SPRING_2",
		"":            "",
	}
	for in, want := range tests {
		if got := CanonicalPromotionCode(in); got != want {
			t.Fatalf("CanonicalPromotionCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPromotionValidate(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	negative := -1

	valid := Promotion{
		Code:          "SAVE10",
		DiscountType:  DiscountPercentage,
		DiscountValue: 10,
		AppliesTo:     PromotionAppliesAll,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid promotion, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Promotion)
		field  string
	}{
		{"empty code", func(p *Promotion) { p.Code = "" }, "code"},
		{"lower case code", func(p *Promotion) { p.Code = "save10" }, "code"},
		{"dash in code", func(p *Promotion) { p.Code = "SAVE-10" }, "code"},
		{"long code", func(p *Promotion) { p.Code = string(make([]byte, 51)) }, "code"},
		{"unknown type", func(p *Promotion) { p.DiscountType = "PERCENT" }, "discount_type"},
		{"zero value", func(p *Promotion) { p.DiscountValue = 0 }, "discount_value"},
		{"percentage over 100", func(p *Promotion) { p.DiscountValue = 101 }, "discount_value"},
		{"unknown scope", func(p *Promotion) { p.AppliesTo = "PRODUCT" }, "applies_to"},
		{"scope without ids", func(p *Promotion) { p.AppliesTo = PromotionAppliesProducts }, "applies_to_ids"},
		{"scope with blank ids", func(p *Promotion) {
			p.AppliesTo = PromotionAppliesCategories
			p.AppliesToIDs = []string{" "}
		}, "applies_to_ids"},
		{"window reversed", func(p *Promotion) { p.StartAt, p.EndAt = &end, &start }, "start_at"},
		{"window empty", func(p *Promotion) { p.StartAt, p.EndAt = &start, &start }, "start_at"},
		{"negative usage limit", func(p *Promotion) { p.UsageLimit = &negative }, "usage_limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			err := p.Validate()
			if !errors.Is(err, ErrInvalidPromotion) {
				t.Fatalf("expected ErrInvalidPromotion, got %v", err)
			}
			var fieldErr *PromotionFieldError
			if !errors.As(err, &fieldErr) || fieldErr.Field != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, err)
			}
		})
	}

	fixed := valid
	fixed.DiscountType = DiscountFixed
	fixed.DiscountValue = 50000
	fixed.AppliesTo = PromotionAppliesProducts
	fixed.AppliesToIDs = []string{"prod_p"}
	fixed.StartAt, fixed.EndAt = &start, &end
	if err := fixed.Validate(); err != nil {
		t.Fatalf("fixed amounts above 100 are allowed, got %v", err)
	}
}
