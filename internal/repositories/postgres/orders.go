package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const orderColumns = `id, user_id, status, final_price, discount_amount,
	applied_promotion_id, applied_promotion_code, created_at, updated_at`

type orderRepository struct{ s *Store }

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		q := r.s.q(ctx)
		_, err := q.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			order.ID, order.UserID, string(order.Status), order.FinalPrice, order.DiscountAmount,
			order.AppliedPromotionID, order.AppliedPromotionCode, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return wrapError("orders.insert", err)
		}
		if len(order.Items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`INSERT INTO order_items
				(id, order_id, product_id, quantity, unit_sale_price, total_price, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				item.ID, order.ID, item.ProductID, item.Quantity, item.UnitSalePrice, item.TotalPrice, i)
		}
		return wrapError("orders.insert_items", q.SendBatch(ctx, batch).Close())
	})
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE orders SET
			status = $2, final_price = $3, discount_amount = $4,
			applied_promotion_id = $5, applied_promotion_code = $6, updated_at = $7
		WHERE id = $1`,
		order.ID, string(order.Status), order.FinalPrice, order.DiscountAmount,
		order.AppliedPromotionID, order.AppliedPromotionCode, order.UpdatedAt)
	if err != nil {
		return wrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("orders.update", "order "+order.ID)
	}
	return nil
}

// FindByID locks the order row when called inside a transaction so concurrent
// transitions of the same order serialise.
func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}
	q := r.s.q(ctx)
	order, err := scanOrder(q.QueryRow(ctx, query, orderID))
	if err != nil {
		return domain.Order{}, wrapError("orders.find", err)
	}
	if err := r.attachItems(ctx, q, []*domain.Order{&order}); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) Delete(ctx context.Context, orderID string) error {
	tag, err := r.s.q(ctx).Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return wrapError("orders.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("orders.delete", "order "+orderID)
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	where, args := orderListWhere(filter)
	limit := max(filter.Limit, 1)
	page := max(filter.Page, 1)
	q := r.s.q(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.count", err)
	}

	sortColumn := "created_at"
	if filter.SortBy == domain.OrderSortFinalPrice {
		sortColumn = "final_price"
	}
	direction := "DESC"
	if filter.SortOrder == domain.SortAsc {
		direction = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, sortColumn, direction, direction, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}

	refs := make([]*domain.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.attachItems(ctx, q, refs); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.NewPage(orders, total, page, limit), nil
}

func orderListWhere(filter repositories.OrderListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		add("status = ANY($%d)", statuses)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add(`status ILIKE '%%' || $%d || '%%'`, likeEscaper.Replace(search))
	}
	if filter.StartDate != nil {
		add("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at <= $%d", *filter.EndDate)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *orderRepository) attachItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		byID[order.ID] = order
		order.Items = []domain.OrderItem{}
	}

	rows, err := q.Query(ctx, `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity,
			oi.unit_sale_price, oi.total_price, p.sku, p.name, p.category_id
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position`, ids)
	if err != nil {
		return wrapError("orders.items", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var item domain.OrderItem
		err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitSalePrice, &item.TotalPrice,
			&item.Product.SKU, &item.Product.Name, &item.Product.CategoryID)
		item.Product.ID = item.ProductID
		return item, err
	})
	if err != nil {
		return wrapError("orders.items", err)
	}
	for _, item := range items {
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(&order.ID, &order.UserID, &status, &order.FinalPrice, &order.DiscountAmount,
		&order.AppliedPromotionID, &order.AppliedPromotionCode, &order.CreatedAt, &order.UpdatedAt)
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, err
}
