package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const promotionColumns = `id, code, description, discount_type, discount_value,
	applies_to, applies_to_ids, start_at, end_at, is_active,
	usage_limit, per_user_limit, used_count, created_at, updated_at`

type promotionRepository struct{ s *Store }

// FindByCode expects codes stored in canonical form.
func (r *promotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	row := r.s.q(ctx).QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE code = $1`,
		domain.CanonicalPromotionCode(code))
	p, err := scanPromotion(row)
	if err != nil {
		return domain.Promotion{}, wrapError("promotions.find", err)
	}
	return p, nil
}

func (r *promotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	row := r.s.q(ctx).QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, promotionID)
	p, err := scanPromotion(row)
	if err != nil {
		return domain.Promotion{}, wrapError("promotions.get", err)
	}
	return p, nil
}

// Insert relies on the unique index on code; a clash surfaces as a conflict.
func (r *promotionRepository) Insert(ctx context.Context, p domain.Promotion) error {
	_, err := r.s.q(ctx).Exec(ctx, `INSERT INTO promotions (id, code, description, discount_type, discount_value,
			applies_to, applies_to_ids, start_at, end_at, is_active, usage_limit, per_user_limit,
			used_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, $14)`,
		p.ID, p.Code, p.Description, string(p.DiscountType), p.DiscountValue,
		string(p.AppliesTo), nonNilIDs(p.AppliesToIDs), p.StartAt, p.EndAt, p.IsActive,
		p.UsageLimit, p.PerUserLimit, p.CreatedAt, p.UpdatedAt)
	return wrapError("promotions.insert", err)
}

func (r *promotionRepository) Update(ctx context.Context, p domain.Promotion) error {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE promotions SET
			code = $2, description = $3, discount_type = $4, discount_value = $5,
			applies_to = $6, applies_to_ids = $7, start_at = $8, end_at = $9, is_active = $10,
			usage_limit = $11, per_user_limit = $12, updated_at = $13
		WHERE id = $1`,
		p.ID, p.Code, p.Description, string(p.DiscountType), p.DiscountValue,
		string(p.AppliesTo), nonNilIDs(p.AppliesToIDs), p.StartAt, p.EndAt, p.IsActive,
		p.UsageLimit, p.PerUserLimit, p.UpdatedAt)
	if err != nil {
		return wrapError("promotions.update", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("promotions.update", "promotion "+p.ID)
	}
	return nil
}

// Delete leaves orders in place; their applied_promotion_id is cleared by the
// foreign key while the recorded code stays.
func (r *promotionRepository) Delete(ctx context.Context, promotionID string) error {
	tag, err := r.s.q(ctx).Exec(ctx, `DELETE FROM promotions WHERE id = $1`, promotionID)
	if err != nil {
		return wrapError("promotions.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("promotions.delete", "promotion "+promotionID)
	}
	return nil
}

func (r *promotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.Page[domain.Promotion], error) {
	var (
		where string
		args  []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = ` WHERE code ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'`
		args = append(args, likeEscaper.Replace(search))
	}
	limit := max(filter.Limit, 1)
	page := max(filter.Page, 1)
	q := r.s.q(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM promotions`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Promotion]{}, wrapError("promotions.count", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM promotions%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		promotionColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Promotion]{}, wrapError("promotions.list", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Promotion, error) {
		return scanPromotion(row)
	})
	if err != nil {
		return domain.Page[domain.Promotion]{}, wrapError("promotions.list", err)
	}
	return domain.NewPage(items, total, page, limit), nil
}

func scanPromotion(row pgx.Row) (domain.Promotion, error) {
	var (
		p            domain.Promotion
		discountType string
		appliesTo    string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Description, &discountType, &p.DiscountValue,
		&appliesTo, &p.AppliesToIDs, &p.StartAt, &p.EndAt, &p.IsActive,
		&p.UsageLimit, &p.PerUserLimit, &p.UsedCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Promotion{}, err
	}
	p.DiscountType = domain.DiscountType(discountType)
	p.AppliesTo = domain.PromotionScope(appliesTo)
	return p, nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
