package firestore

import (
	"context"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	pfirestore "github.com/hoangphuc3604/my-shop-backend/internal/platform/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const seedBatchSize = 400

type promotionRepository struct{ r *Registry }

func (p *promotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	normalized := domain.CanonicalPromotionCode(code)
	docs, err := p.r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.NotFound("promotions.find", "promotion "+normalized)
	}
	return docs[0].toDomain(), nil
}

func (p *promotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	doc, err := p.r.promotions.Get(ctx, promotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.toDomain(), nil
}

// Insert checks the code inside a transaction since Firestore has no unique
// constraint. The read happens before the write as Firestore requires.
func (p *promotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	return p.inTx(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := p.ensureCodeFree(ctx, promotion.Code, ""); err != nil {
			return err
		}
		ref, err := p.r.promotions.Doc(ctx, promotion.ID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("promotions.insert", tx.Create(ref, newPromotionDocument(promotion, writeTime(promotion))))
	})
}

func (p *promotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	return p.inTx(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := p.r.promotions.Get(ctx, promotion.ID)
		if err != nil {
			return err
		}
		if err := p.ensureCodeFree(ctx, promotion.Code, promotion.ID); err != nil {
			return err
		}
		promotion.CreatedAt = current.CreatedAt
		promotion.UsedCount = current.UsedCount
		ref, err := p.r.promotions.Doc(ctx, promotion.ID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("promotions.update", tx.Set(ref, newPromotionDocument(promotion, writeTime(promotion))))
	})
}

func (p *promotionRepository) Delete(ctx context.Context, promotionID string) error {
	ref, err := p.r.promotions.Doc(ctx, promotionID)
	if err != nil {
		return err
	}
	if state, ok := txStateFrom(ctx); ok {
		return pfirestore.WrapError("promotions.delete", state.tx.Delete(ref, firestore.Exists))
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("promotions.delete", err)
}

// List loads the collection and filters in memory; Firestore has no substring match.
func (p *promotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.Page[domain.Promotion], error) {
	docs, err := p.r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.Page[domain.Promotion]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		if search != "" &&
			!strings.Contains(strings.ToLower(doc.Code), search) &&
			!strings.Contains(strings.ToLower(doc.Description), search) {
			continue
		}
		matched = append(matched, doc.toDomain())
	}

	limit := max(filter.Limit, 1)
	page := max(filter.Page, 1)
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	return domain.NewPage(slices.Clone(matched[start:end]), len(matched), page, limit), nil
}

func (p *promotionRepository) ensureCodeFree(ctx context.Context, code, ownerID string) error {
	docs, err := p.r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(2)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != ownerID {
			return pfirestore.Conflict("promotions.code", "code "+code)
		}
	}
	return nil
}

func writeTime(promotion domain.Promotion) time.Time {
	if promotion.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return promotion.UpdatedAt.UTC()
}

func (p *promotionRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx *firestore.Transaction) error) error {
	return p.r.RunInTx(ctx, func(txCtx context.Context) error {
		state, _ := txStateFrom(txCtx)
		return fn(txCtx, state.tx)
	})
}

// Seed writes the fixture with batched Sets. Existing documents are overwritten.
func (r *Registry) Seed(ctx context.Context, data repositories.SeedData) error {
	data, err := data.Normalized()
	if err != nil {
		return err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	type write struct {
		ref  *firestore.DocumentRef
		data any
	}
	writes := make([]write, 0, len(data.Products)+len(data.Promotions))
	for _, product := range data.Products {
		writes = append(writes, write{client.Collection(productsCollection).Doc(product.ID), newProductDocument(product, now)})
	}
	for _, promotion := range data.Promotions {
		writes = append(writes, write{client.Collection(promotionsCollection).Doc(promotion.ID), newPromotionDocument(promotion, now)})
	}

	for start := 0; start < len(writes); start += seedBatchSize {
		batch := client.Batch()
		for _, w := range writes[start:min(start+seedBatchSize, len(writes))] {
			batch.Set(w.ref, w.data)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return pfirestore.WrapError("seed", err)
		}
	}
	return nil
}
