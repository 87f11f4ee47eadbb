package postgres

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const productColumns = `id, sku, name, import_price, count, category_id, created_at, updated_at`

type productRepository struct{ s *Store }

func (r *productRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.s.q(ctx).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`, productIDs)
	if err != nil {
		return nil, wrapError("products.find", err)
	}
	products, err := pgx.CollectRows(rows, collectProduct)
	return products, wrapError("products.find", err)
}

// LockByIDs must run inside RunInTx; outside a transaction the locks are
// released as soon as the statement completes.
func (r *productRepository) LockByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := r.s.q(ctx).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, wrapError("products.lock", err)
	}
	products, err := pgx.CollectRows(rows, collectProduct)
	return products, wrapError("products.lock", err)
}

func (r *productRepository) LockByID(ctx context.Context, productID string) (domain.Product, error) {
	row := r.s.q(ctx).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, repositories.NewInventoryError("products.lock", repositories.InventoryErrorStockNotFound, productID, err)
	}
	if err != nil {
		return domain.Product{}, wrapError("products.lock", err)
	}
	return product, nil
}

func (r *productRepository) UpdateCount(ctx context.Context, productID string, count int) error {
	if count < 0 {
		return repositories.NewInventoryError("products.update_count", repositories.InventoryErrorNegativeStock, productID, nil)
	}
	tag, err := r.s.q(ctx).Exec(ctx,
		`UPDATE products SET count = $2, updated_at = now() WHERE id = $1`, productID, count)
	if err != nil {
		if isCheckViolation(err) {
			return repositories.NewInventoryError("products.update_count", repositories.InventoryErrorNegativeStock, productID, err)
		}
		return wrapError("products.update_count", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewInventoryError("products.update_count", repositories.InventoryErrorStockNotFound, productID, nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectProduct(row pgx.CollectableRow) (domain.Product, error) { return scanProduct(row) }

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.ImportPrice, &p.Count, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
