// Package firestore implements the repository registry on Cloud Firestore.
// Orders embed their items; products and promotions live in their own collections.
package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hoangphuc3604/my-shop-backend/internal/platform/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const (
	productsCollection   = "products"
	ordersCollection     = "orders"
	promotionsCollection = "promotions"
)

// Registry serves repositories backed by one Firestore provider.
type Registry struct {
	provider   *pfirestore.Provider
	txAttempts int

	products   *pfirestore.Collection[productDocument]
	orders     *pfirestore.Collection[orderDocument]
	promotions *pfirestore.Collection[promotionDocument]
}

var (
	_ repositories.Registry = (*Registry)(nil)
	_ repositories.Seeder   = (*Registry)(nil)
)

// NewRegistry binds the collections to provider. txAttempts <= 0 keeps the client default.
func NewRegistry(provider *pfirestore.Provider, txAttempts int) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	return &Registry{
		provider:   provider,
		txAttempts: txAttempts,
		products:   pfirestore.NewCollection[productDocument](provider, productsCollection, decodeProduct),
		orders:     pfirestore.NewCollection[orderDocument](provider, ordersCollection, decodeOrder),
		promotions: pfirestore.NewCollection[promotionDocument](provider, promotionsCollection, decodePromotion),
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository     { return &productRepository{r} }
func (r *Registry) Orders() repositories.OrderRepository         { return &orderRepository{r} }
func (r *Registry) Promotions() repositories.PromotionRepository { return &promotionRepository{r} }

// Health checks Firestore with a one-document read.
func (r *Registry) Health() repositories.HealthRepository {
	repo, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 3 * time.Second,
		Check: func(ctx context.Context) error {
			coll, err := r.products.Ref(ctx)
			if err != nil {
				return err
			}
			_, err = coll.Limit(1).Documents(ctx).GetAll()
			return pfirestore.WrapError("health", err)
		},
	}})
	return repo
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// RunInTx runs fn in a Firestore transaction. Firestore rejects reads after
// writes, so products read or locked during the transaction are cached and
// later LockByID calls are served from that cache.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txStateFrom(ctx); ok {
		return fn(ctx)
	}
	var opts []pfirestore.TxOption
	if r.txAttempts > 0 {
		opts = append(opts, pfirestore.WithTxAttempts(r.txAttempts))
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx, products: make(map[string]productDocument)}
		return fn(context.WithValue(txCtx, txStateKey{}, state))
	}, opts...)
}

type txStateKey struct{}

// txState lives for one transaction attempt.
type txState struct {
	tx       *firestore.Transaction
	products map[string]productDocument
}

func txStateFrom(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txStateKey{}).(*txState)
	return state, ok && state != nil
}
