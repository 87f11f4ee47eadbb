// Package memory implements the repository registry in process memory.
// Units of work are serialised by a store-wide lock and rolled back from an undo log.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// Store holds products, orders and promotions. The zero value is not usable; call NewStore.
type Store struct {
	txMu sync.Mutex

	products   map[string]domain.Product
	orders     map[string]domain.Order
	promotions map[string]domain.Promotion
	clock      func() time.Time
}

var (
	_ repositories.Registry            = (*Store)(nil)
	_ repositories.ProductRepository   = productRepository{}
	_ repositories.OrderRepository     = orderRepository{}
	_ repositories.PromotionRepository = promotionRepository{}
	_ repositories.Seeder              = (*Store)(nil)
)

// Option customises the memory store.
type Option func(*Store)

// WithClock overrides the timestamp source for product writes.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		promotions: make(map[string]domain.Promotion),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Products() repositories.ProductRepository     { return productRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepository{s} }
func (s *Store) Promotions() repositories.PromotionRepository { return promotionRepository{s} }

// Health reports the memory store as always reachable.
func (s *Store) Health() repositories.HealthRepository {
	repo, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "store", Check: func(context.Context) error { return nil }},
	})
	return repo
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

type txKey struct{}

type memTx struct {
	store *Store
	undo  []func()
}

// RunInTx runs fn with exclusive access to the store. Nested calls join the
// outer unit of work. Any error rolls back every write made through txCtx.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok && tx.store == s {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// exec runs op inside the caller's unit of work, or inside a single-operation one.
func (s *Store) exec(ctx context.Context, op func(tx *memTx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok && tx.store == s {
		return op(tx)
	}
	return s.RunInTx(ctx, func(txCtx context.Context) error {
		return op(txCtx.Value(txKey{}).(*memTx))
	})
}

func (tx *memTx) putProduct(product domain.Product) {
	s := tx.store
	previous, existed := s.products[product.ID]
	s.products[product.ID] = product
	tx.undo = append(tx.undo, func() {
		if existed {
			s.products[product.ID] = previous
		} else {
			delete(s.products, product.ID)
		}
	})
}

func (tx *memTx) putOrder(order domain.Order) {
	s := tx.store
	previous, existed := s.orders[order.ID]
	s.orders[order.ID] = cloneOrder(order)
	tx.undo = append(tx.undo, func() {
		if existed {
			s.orders[order.ID] = previous
		} else {
			delete(s.orders, order.ID)
		}
	})
}

func (tx *memTx) deleteOrder(orderID string) {
	s := tx.store
	previous, existed := s.orders[orderID]
	if !existed {
		return
	}
	delete(s.orders, orderID)
	tx.undo = append(tx.undo, func() {
		s.orders[orderID] = previous
	})
}

func (tx *memTx) putPromotion(promotion domain.Promotion) {
	s := tx.store
	previous, existed := s.promotions[promotion.ID]
	s.promotions[promotion.ID] = clonePromotion(promotion)
	tx.undo = append(tx.undo, func() {
		if existed {
			s.promotions[promotion.ID] = previous
		} else {
			delete(s.promotions, promotion.ID)
		}
	})
}

func (tx *memTx) deletePromotion(promotionID string) {
	s := tx.store
	previous, existed := s.promotions[promotionID]
	if !existed {
		return
	}
	delete(s.promotions, promotionID)
	tx.undo = append(tx.undo, func() {
		s.promotions[promotionID] = previous
	})
}

// promotionByCode scans for a canonical code. Promotions are few.
func (s *Store) promotionByCode(code string) (domain.Promotion, bool) {
	for _, promotion := range s.promotions {
		if promotion.Code == code {
			return promotion, true
		}
	}
	return domain.Promotion{}, false
}

// Seed upserts products and promotions in one unit of work.
func (s *Store) Seed(ctx context.Context, data repositories.SeedData) error {
	data, err := data.Normalized()
	if err != nil {
		return err
	}
	return s.exec(ctx, func(tx *memTx) error {
		now := s.clock().UTC()
		for _, product := range data.Products {
			if product.ID == "" {
				return fmt.Errorf("memory: seed product missing id")
			}
			if product.CreatedAt.IsZero() {
				product.CreatedAt = now
			}
			product.UpdatedAt = now
			tx.putProduct(product)
		}
		for _, promotion := range data.Promotions {
			if held, ok := s.promotionByCode(promotion.Code); ok && held.ID != promotion.ID {
				return fmt.Errorf("memory: seed promotion %s: code %s belongs to %s", promotion.ID, promotion.Code, held.ID)
			}
			if promotion.CreatedAt.IsZero() {
				promotion.CreatedAt = now
			}
			promotion.UpdatedAt = now
			tx.putPromotion(promotion)
		}
		return nil
	})
}

// Product returns a product snapshot, primarily for tests.
func (s *Store) Product(ctx context.Context, productID string) (domain.Product, bool) {
	var (
		product domain.Product
		ok      bool
	)
	_ = s.exec(ctx, func(*memTx) error {
		product, ok = s.products[productID]
		return nil
	})
	return product, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount(ctx context.Context) int {
	var n int
	_ = s.exec(ctx, func(*memTx) error {
		n = len(s.orders)
		return nil
	})
	return n
}

type productRepository struct{ s *Store }

func (r productRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	var out []domain.Product
	err := r.s.exec(ctx, func(*memTx) error {
		out = r.s.collectProducts(productIDs)
		return nil
	})
	return out, err
}

// LockByIDs needs no extra locking: the store lock is already held for the unit of work.
func (r productRepository) LockByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	return r.FindByIDs(ctx, productIDs)
}

func (r productRepository) LockByID(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	err := r.s.exec(ctx, func(*memTx) error {
		found, ok := r.s.products[productID]
		if !ok {
			return repositories.NewInventoryError("memory.products.lock", repositories.InventoryErrorStockNotFound, productID, nil)
		}
		product = found
		return nil
	})
	return product, err
}

func (r productRepository) UpdateCount(ctx context.Context, productID string, count int) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		product, ok := r.s.products[productID]
		if !ok {
			return repositories.NewInventoryError("memory.products.update", repositories.InventoryErrorStockNotFound, productID, nil)
		}
		if count < 0 {
			return repositories.NewInventoryError("memory.products.update", repositories.InventoryErrorNegativeStock, productID, nil)
		}
		product.Count = count
		product.UpdatedAt = r.s.clock().UTC()
		tx.putProduct(product)
		return nil
	})
}

func (s *Store) collectProducts(productIDs []string) []domain.Product {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out = append(out, product)
		}
	}
	return out
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		if _, exists := r.s.orders[order.ID]; exists {
			return &repoError{op: "orders.insert", kind: kindConflict, msg: "order " + order.ID + " already exists"}
		}
		for _, item := range order.Items {
			if _, ok := r.s.products[item.ProductID]; !ok {
				return &repoError{op: "orders.insert", kind: kindConflict, msg: "unknown product " + item.ProductID}
			}
		}
		tx.putOrder(order)
		return nil
	})
}

func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		current, exists := r.s.orders[order.ID]
		if !exists {
			return &repoError{op: "orders.update", kind: kindNotFound, msg: "order " + order.ID + " not found"}
		}
		order.Items = current.Items
		order.CreatedAt = current.CreatedAt
		order.UserID = current.UserID
		tx.putOrder(order)
		return nil
	})
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.s.exec(ctx, func(*memTx) error {
		found, ok := r.s.orders[orderID]
		if !ok {
			return &repoError{op: "orders.find", kind: kindNotFound, msg: "order " + orderID + " not found"}
		}
		order = cloneOrder(found)
		return nil
	})
	return order, err
}

func (r orderRepository) Delete(ctx context.Context, orderID string) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		if _, ok := r.s.orders[orderID]; !ok {
			return &repoError{op: "orders.delete", kind: kindNotFound, msg: "order " + orderID + " not found"}
		}
		tx.deleteOrder(orderID)
		return nil
	})
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	var page domain.Page[domain.Order]
	err := r.s.exec(ctx, func(*memTx) error {
		matched := make([]domain.Order, 0, len(r.s.orders))
		for _, order := range r.s.orders {
			if matchesFilter(order, filter) {
				matched = append(matched, order)
			}
		}
		sortOrders(matched, filter.SortBy, filter.SortOrder)

		limit := max(filter.Limit, 1)
		pageNumber := max(filter.Page, 1)
		start := min((pageNumber-1)*limit, len(matched))
		end := min(start+limit, len(matched))

		items := make([]domain.Order, 0, end-start)
		for _, order := range matched[start:end] {
			items = append(items, cloneOrder(order))
		}
		page = domain.NewPage(items, len(matched), pageNumber, limit)
		return nil
	})
	return page, err
}

func matchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if filter.UserID != "" && order.UserID != filter.UserID {
		return false
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		if !strings.Contains(strings.ToLower(string(order.Status)), search) {
			return false
		}
	}
	if filter.StartDate != nil && order.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && order.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

func sortOrders(orders []domain.Order, field domain.OrderSortField, direction domain.SortOrder) {
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		var cmp int
		if field == domain.OrderSortFinalPrice {
			cmp = compareInt64(a.FinalPrice, b.FinalPrice)
		} else {
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if direction == domain.SortAsc {
			return cmp
		}
		return -cmp
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type promotionRepository struct{ s *Store }

func (r promotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	code = domain.CanonicalPromotionCode(code)
	var promotion domain.Promotion
	err := r.s.exec(ctx, func(*memTx) error {
		found, ok := r.s.promotionByCode(code)
		if !ok {
			return &repoError{op: "promotions.find", kind: kindNotFound, msg: "promotion " + code + " not found"}
		}
		promotion = clonePromotion(found)
		return nil
	})
	return promotion, err
}

func (r promotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	var promotion domain.Promotion
	err := r.s.exec(ctx, func(*memTx) error {
		found, ok := r.s.promotions[promotionID]
		if !ok {
			return &repoError{op: "promotions.get", kind: kindNotFound, msg: "promotion " + promotionID + " not found"}
		}
		promotion = clonePromotion(found)
		return nil
	})
	return promotion, err
}

func (r promotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		if _, exists := r.s.promotions[promotion.ID]; exists {
			return &repoError{op: "promotions.insert", kind: kindConflict, msg: "promotion " + promotion.ID + " already exists"}
		}
		if _, taken := r.s.promotionByCode(promotion.Code); taken {
			return &repoError{op: "promotions.insert", kind: kindConflict, msg: "code " + promotion.Code + " is taken"}
		}
		tx.putPromotion(promotion)
		return nil
	})
}

func (r promotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		current, exists := r.s.promotions[promotion.ID]
		if !exists {
			return &repoError{op: "promotions.update", kind: kindNotFound, msg: "promotion " + promotion.ID + " not found"}
		}
		if held, taken := r.s.promotionByCode(promotion.Code); taken && held.ID != promotion.ID {
			return &repoError{op: "promotions.update", kind: kindConflict, msg: "code " + promotion.Code + " is taken"}
		}
		promotion.CreatedAt = current.CreatedAt
		promotion.UsedCount = current.UsedCount
		tx.putPromotion(promotion)
		return nil
	})
}

func (r promotionRepository) Delete(ctx context.Context, promotionID string) error {
	return r.s.exec(ctx, func(tx *memTx) error {
		if _, ok := r.s.promotions[promotionID]; !ok {
			return &repoError{op: "promotions.delete", kind: kindNotFound, msg: "promotion " + promotionID + " not found"}
		}
		tx.deletePromotion(promotionID)
		return nil
	})
}

func (r promotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.Page[domain.Promotion], error) {
	var page domain.Page[domain.Promotion]
	err := r.s.exec(ctx, func(*memTx) error {
		search := strings.ToLower(strings.TrimSpace(filter.Search))
		matched := make([]domain.Promotion, 0, len(r.s.promotions))
		for _, promotion := range r.s.promotions {
			if search != "" &&
				!strings.Contains(strings.ToLower(promotion.Code), search) &&
				!strings.Contains(strings.ToLower(promotion.Description), search) {
				continue
			}
			matched = append(matched, promotion)
		}
		slices.SortFunc(matched, func(a, b domain.Promotion) int {
			if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
				return cmp
			}
			return strings.Compare(a.ID, b.ID)
		})

		limit := max(filter.Limit, 1)
		pageNumber := max(filter.Page, 1)
		start := min((pageNumber-1)*limit, len(matched))
		end := min(start+limit, len(matched))
		items := make([]domain.Promotion, 0, end-start)
		for _, promotion := range matched[start:end] {
			items = append(items, clonePromotion(promotion))
		}
		page = domain.NewPage(items, len(matched), pageNumber, limit)
		return nil
	})
	return page, err
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	if order.AppliedPromotionID != nil {
		id := *order.AppliedPromotionID
		order.AppliedPromotionID = &id
	}
	if order.AppliedPromotionCode != nil {
		code := *order.AppliedPromotionCode
		order.AppliedPromotionCode = &code
	}
	return order
}

func clonePromotion(promotion domain.Promotion) domain.Promotion {
	promotion.AppliesToIDs = slices.Clone(promotion.AppliesToIDs)
	return promotion
}

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

type repoError struct {
	op   string
	kind errorKind
	msg  string
}

func (e *repoError) Error() string       { return "memory." + e.op + ": " + e.msg }
func (e *repoError) IsNotFound() bool    { return e.kind == kindNotFound }
func (e *repoError) IsConflict() bool    { return e.kind == kindConflict }
func (e *repoError) IsUnavailable() bool { return false }
