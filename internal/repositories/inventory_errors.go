package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorStockNotFound indicates the product row does not exist.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorNegativeStock indicates a write would leave a negative count.
	InventoryErrorNegativeStock InventoryErrorCode = "inventory_negative_stock"
)

// InventoryError wraps stock-row failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Message   string
	Err       error
}

func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.ProductID != "" {
		msg = fmt.Sprintf("%s (product %s)", msg, e.ProductID)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports missing product rows so InventoryError satisfies RepositoryError.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorStockNotFound
}

func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorNegativeStock
}

func (e *InventoryError) IsUnavailable() bool { return false }

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(op string, code InventoryErrorCode, productID string, err error) *InventoryError {
	message := string(code)
	switch code {
	case InventoryErrorStockNotFound:
		message = "product not found"
	case InventoryErrorNegativeStock:
		message = "stock count cannot be negative"
	}
	return &InventoryError{
		Op:        op,
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}
