package services

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderInvalidInput signals the caller provided malformed data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: order not found")
	// ErrOrderConflict indicates the store rejected a write because of concurrent access.
	ErrOrderConflict = errors.New("order: conflict")

	ErrProductsNotFound        = errors.New("order: some products not found")
	ErrInvalidQuantity         = errors.New("order: quantity must be greater than 0")
	ErrOutOfStock              = errors.New("order: insufficient stock")
	ErrDuplicateLineItem       = errors.New("order: duplicate product in line items")
	ErrPermissionDenied        = errors.New("order: permission denied")
	ErrInvalidStatusTransition = errors.New("order: invalid status transition")
)

// StockError reports which product could not satisfy a reservation.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s. available: %d", e.ProductName, e.Available)
}

// Unwrap lets errors.Is match ErrOutOfStock.
func (e *StockError) Unwrap() error {
	return ErrOutOfStock
}

func newStockError(product Product, requested int) error {
	name := product.Name
	if name == "" {
		name = product.ID
	}
	return &StockError{
		ProductID:   product.ID,
		ProductName: name,
		Requested:   requested,
		Available:   product.Count,
	}
}

// ErrorKind classifies service failures for transport mapping.
type ErrorKind string

const (
	ErrorKindUnknown    ErrorKind = ""
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindConflict   ErrorKind = "conflict"
)

var errorKinds = []struct {
	target error
	kind   ErrorKind
}{
	{ErrProductsNotFound, ErrorKindValidation},
	{ErrInvalidQuantity, ErrorKindValidation},
	{ErrDuplicateLineItem, ErrorKindValidation},
	{ErrOrderInvalidInput, ErrorKindValidation},
	{ErrPromotionInvalidCode, ErrorKindValidation},
	{ErrPromotionInactive, ErrorKindValidation},
	{ErrPromotionNotStarted, ErrorKindValidation},
	{ErrPromotionExpired, ErrorKindValidation},
	{ErrPromotionNotApplicable, ErrorKindValidation},
	{ErrPromotionInvalid, ErrorKindValidation},
	{ErrOrderNotFound, ErrorKindNotFound},
	{ErrPromotionNotFound, ErrorKindNotFound},
	{ErrPermissionDenied, ErrorKindPermission},
	{ErrOutOfStock, ErrorKindConflict},
	{ErrInvalidStatusTransition, ErrorKindConflict},
	{ErrOrderConflict, ErrorKindConflict},
	{ErrPromotionCodeTaken, ErrorKindConflict},
}

// alreadyClassified keeps errors that carry an engine sentinel from being
// wrapped a second time on their way out of a transaction.
func alreadyClassified(err error) bool {
	return ErrorKindOf(err) != ErrorKindUnknown
}

// ErrorKindOf maps an error returned by the order engine to its category.
// Infrastructure failures report ErrorKindUnknown.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.target) {
			return candidate.kind
		}
	}
	return ErrorKindUnknown
}
