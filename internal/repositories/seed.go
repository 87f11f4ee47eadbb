package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// SeedData is the catalog fixture loaded into a store at startup.
type SeedData struct {
	Products   []domain.Product
	Promotions []domain.Promotion
}

// Seeder upserts fixture data. Stock counts in the fixture overwrite stored values.
type Seeder interface {
	Seed(ctx context.Context, data SeedData) error
}

type seedFile struct {
	Products []struct {
		ID          string `json:"id"`
		SKU         string `json:"sku"`
		Name        string `json:"name"`
		ImportPrice int64  `json:"import_price"`
		Count       int    `json:"count"`
		CategoryID  string `json:"category_id"`
	} `json:"products"`
	Promotions []struct {
		ID            string     `json:"id"`
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
	} `json:"promotions"`
}

// LoadSeedFile reads a JSON fixture. Promotion codes are stored in canonical form.
func LoadSeedFile(path string) (SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedData{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return ParseSeed(raw, path)
}

// ParseSeed decodes a JSON fixture. source names the fixture in errors.
func ParseSeed(raw []byte, source string) (SeedData, error) {
	var file seedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return SeedData{}, fmt.Errorf("seed: decode %s: %w", source, err)
	}

	var data SeedData
	for i, p := range file.Products {
		if strings.TrimSpace(p.ID) == "" {
			return SeedData{}, fmt.Errorf("seed: product %d is missing id", i)
		}
		if p.Count < 0 {
			return SeedData{}, fmt.Errorf("seed: product %s has negative count", p.ID)
		}
		data.Products = append(data.Products, domain.Product{
			ID:          strings.TrimSpace(p.ID),
			SKU:         strings.TrimSpace(p.SKU),
			Name:        strings.TrimSpace(p.Name),
			ImportPrice: p.ImportPrice,
			Count:       p.Count,
			CategoryID:  strings.TrimSpace(p.CategoryID),
		})
	}
	for i, p := range file.Promotions {
		code := domain.CanonicalPromotionCode(p.Code)
		if code == "" {
			return SeedData{}, fmt.Errorf("seed: promotion %d is missing code", i)
		}
		active := true
		if p.IsActive != nil {
			active = *p.IsActive
		}
		data.Promotions = append(data.Promotions, domain.Promotion{
			ID:            strings.TrimSpace(p.ID),
			Code:          code,
			Description:   p.Description,
			DiscountType:  domain.DiscountType(strings.ToUpper(strings.TrimSpace(p.DiscountType))),
			DiscountValue: p.DiscountValue,
			AppliesTo:     domain.PromotionScope(strings.ToUpper(strings.TrimSpace(p.AppliesTo))),
			AppliesToIDs:  p.AppliesToIDs,
			StartAt:       p.StartAt,
			EndAt:         p.EndAt,
			IsActive:      active,
			UsageLimit:    p.UsageLimit,
			PerUserLimit:  p.PerUserLimit,
		})
	}
	return data.Normalized()
}

// Normalized canonicalises promotion codes, fills in default ids and scopes
// and validates every promotion. Seeders call it so fixtures built in code
// pass the same checks as fixture files.
func (d SeedData) Normalized() (SeedData, error) {
	out := SeedData{Products: d.Products, Promotions: make([]domain.Promotion, 0, len(d.Promotions))}
	seen := make(map[string]string, len(d.Promotions))
	for _, p := range d.Promotions {
		p.Code = domain.CanonicalPromotionCode(p.Code)
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = "promo_" + strings.ToLower(p.Code)
		}
		if p.AppliesTo == "" {
			p.AppliesTo = domain.PromotionAppliesAll
		}
		if err := p.Validate(); err != nil {
			return SeedData{}, fmt.Errorf("seed: promotion %q: %w", p.Code, err)
		}
		if other, dup := seen[p.Code]; dup && other != p.ID {
			return SeedData{}, fmt.Errorf("seed: promotion code %s used by %s and %s", p.Code, other, p.ID)
		}
		seen[p.Code] = p.ID
		out.Promotions = append(out.Promotions, p)
	}
	return out, nil
}

// ObjectReader fetches fixtures that live outside the local filesystem.
type ObjectReader interface {
	ReadObject(ctx context.Context, uri string) ([]byte, error)
}

// LoadSeed reads the fixture named by source. URIs such as gs://bucket/seed.json
// are fetched through remote; anything else is treated as a local path.
func LoadSeed(ctx context.Context, source string, remote ObjectReader) (SeedData, error) {
	source = strings.TrimSpace(source)
	if !strings.Contains(source, "://") {
		return LoadSeedFile(source)
	}
	if remote == nil {
		return SeedData{}, fmt.Errorf("seed: no object reader configured for %s", source)
	}
	raw, err := remote.ReadObject(ctx, source)
	if err != nil {
		return SeedData{}, fmt.Errorf("seed: fetch %s: %w", source, err)
	}
	return ParseSeed(raw, source)
}
