package firestore

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	pfirestore "github.com/hoangphuc3604/my-shop-backend/internal/platform/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

type productRepository struct{ r *Registry }

func (p *productRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	docs, err := p.load(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	return productsInOrder(docs, productIDs), nil
}

// LockByIDs reads the products through the transaction so that Firestore
// aborts the commit if any of them changes concurrently.
func (p *productRepository) LockByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	docs, err := p.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return productsInOrder(docs, ids), nil
}

func (p *productRepository) LockByID(ctx context.Context, productID string) (domain.Product, error) {
	docs, err := p.load(ctx, []string{productID})
	if err != nil {
		return domain.Product{}, err
	}
	doc, ok := docs[productID]
	if !ok {
		return domain.Product{}, repositories.NewInventoryError("products.lock", repositories.InventoryErrorStockNotFound, productID, nil)
	}
	return doc.toDomain(), nil
}

// UpdateCount writes the new count. Outside a transaction it opens one so the
// existence check and the write are atomic.
func (p *productRepository) UpdateCount(ctx context.Context, productID string, count int) error {
	if count < 0 {
		return repositories.NewInventoryError("products.update_count", repositories.InventoryErrorNegativeStock, productID, nil)
	}
	state, ok := txStateFrom(ctx)
	if !ok {
		return p.r.RunInTx(ctx, func(ctx context.Context) error {
			return p.UpdateCount(ctx, productID, count)
		})
	}

	doc, ok := state.products[productID]
	if !ok {
		if _, err := p.LockByID(ctx, productID); err != nil {
			return err
		}
		doc = state.products[productID]
	}

	ref, err := p.r.products.Doc(ctx, productID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := state.tx.Update(ref, []firestore.Update{
		{Path: "count", Value: count},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		return pfirestore.WrapError("products.update_count", err)
	}
	doc.Count = count
	doc.UpdatedAt = now
	state.products[productID] = doc
	return nil
}

// load serves ids from the transaction cache and reads the rest, caching them.
func (p *productRepository) load(ctx context.Context, ids []string) (map[string]productDocument, error) {
	out := make(map[string]productDocument, len(ids))
	state, inTx := txStateFrom(ctx)

	missing := ids
	if inTx {
		missing = nil
		for _, id := range ids {
			if doc, ok := state.products[id]; ok {
				out[id] = doc
			} else {
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := p.r.products.GetAll(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, doc := range fetched {
		out[id] = doc
		if inTx {
			state.products[id] = doc
		}
	}
	return out, nil
}

func productsInOrder(docs map[string]productDocument, ids []string) []domain.Product {
	products := make([]domain.Product, 0, len(docs))
	for _, id := range ids {
		if doc, ok := docs[id]; ok {
			products = append(products, doc.toDomain())
		}
	}
	return products
}
