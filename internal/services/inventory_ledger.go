package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

// InventoryLedgerDeps bundles the collaborators required to construct an inventory ledger.
type InventoryLedgerDeps struct {
	Products repositories.ProductRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryLedger struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryLedger wires dependencies into a concrete InventoryLedger implementation.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{
		products: deps.Products,
		logger:   logger,
	}, nil
}

// Reserve locks the product row, checks availability and decrements the count.
func (l *inventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: got %d for product %s", ErrInvalidQuantity, quantity, productID)
	}

	product, err := l.products.LockByID(ctx, productID)
	if err != nil {
		return 0, l.mapRepositoryError(err)
	}
	if quantity > product.Count {
		return 0, newStockError(product, quantity)
	}

	remaining := product.Count - quantity
	if err := l.products.UpdateCount(ctx, productID, remaining); err != nil {
		return 0, l.mapRepositoryError(err)
	}

	l.logger(ctx, "inventory.reserve", map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"remaining": remaining,
	})
	return remaining, nil
}

// Release returns quantity to the product count. There is no upper bound.
func (l *inventoryLedger) Release(ctx context.Context, productID string, quantity int) (int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: got %d for product %s", ErrInvalidQuantity, quantity, productID)
	}

	product, err := l.products.LockByID(ctx, productID)
	if err != nil {
		return 0, l.mapRepositoryError(err)
	}

	restored := product.Count + quantity
	if err := l.products.UpdateCount(ctx, productID, restored); err != nil {
		return 0, l.mapRepositoryError(err)
	}

	l.logger(ctx, "inventory.release", map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"count":     restored,
	})
	return restored, nil
}

func (l *inventoryLedger) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrProductsNotFound, invErr.ProductID)
		case repositories.InventoryErrorNegativeStock:
			return fmt.Errorf("%w: %s", ErrOutOfStock, invErr.Error())
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrProductsNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("inventory: repository unavailable: %w", err)
		}
	}
	return err
}
