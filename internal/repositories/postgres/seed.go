package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// Seed upserts products and promotions in one transaction.
func (s *Store) Seed(ctx context.Context, data repositories.SeedData) error {
	data, err := data.Normalized()
	if err != nil {
		return err
	}
	return s.RunInTx(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, p := range data.Products {
			batch.Queue(`INSERT INTO products (id, sku, name, import_price, count, category_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					sku = EXCLUDED.sku, name = EXCLUDED.name, import_price = EXCLUDED.import_price,
					count = EXCLUDED.count, category_id = EXCLUDED.category_id, updated_at = now()`,
				p.ID, p.SKU, p.Name, p.ImportPrice, p.Count, p.CategoryID)
		}
		for _, p := range data.Promotions {
			batch.Queue(`INSERT INTO promotions (id, code, description, discount_type, discount_value,
					applies_to, applies_to_ids, start_at, end_at, is_active, usage_limit, per_user_limit)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (id) DO UPDATE SET
					code = EXCLUDED.code, description = EXCLUDED.description,
					discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
					applies_to = EXCLUDED.applies_to, applies_to_ids = EXCLUDED.applies_to_ids,
					start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at, is_active = EXCLUDED.is_active,
					usage_limit = EXCLUDED.usage_limit, per_user_limit = EXCLUDED.per_user_limit,
					updated_at = now()`,
				p.ID, p.Code, p.Description, string(p.DiscountType), p.DiscountValue,
				string(p.AppliesTo), nonNilIDs(p.AppliesToIDs), p.StartAt, p.EndAt, p.IsActive, p.UsageLimit, p.PerUserLimit)
		}
		if batch.Len() == 0 {
			return nil
		}
		return wrapError("seed", s.q(ctx).SendBatch(ctx, batch).Close())
	})
}
