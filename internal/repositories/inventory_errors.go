package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the product does not have a stock record.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorInvalidQuantity indicates a non-positive quantity was supplied.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
// Available carries the counter observed when a reservation was rejected.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Available int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the product has no stock record.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorStockNotFound
}

// IsConflict reports whether the counter could not satisfy the request.
func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorInsufficientStock
}

// IsUnavailable is always false; infrastructure failures are reported by the backend's own error type.
func (e *InventoryError) IsUnavailable() bool {
	return false
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports that productID holds only available units.
func NewInsufficientStockError(productID string, requested, available int) *InventoryError {
	return &InventoryError{
		Code:      InventoryErrorInsufficientStock,
		ProductID: productID,
		Available: available,
		Message:   fmt.Sprintf("insufficient stock for %s: requested %d, available %d", productID, requested, available),
	}
}

// NewStockNotFoundError reports that productID has no stock record.
func NewStockNotFoundError(productID string, err error) *InventoryError {
	return &InventoryError{
		Code:      InventoryErrorStockNotFound,
		ProductID: productID,
		Message:   fmt.Sprintf("stock %s not found", productID),
		Err:       err,
	}
}
