package services

import (
	"errors"
	"fmt"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a competing write or a contradictory payment signal.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates a storage backend could not serve the request.
	ErrOrderUnavailable = errors.New("order: backend unavailable")
	// ErrInsufficientStock indicates a reservation exceeded the available counter.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrProductNotFound indicates the catalog or ledger does not know the product.
	ErrProductNotFound = errors.New("catalog: product not found")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrOrderInvalidInput, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrOrderInvalidInput }

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %s requested %d, available %d", ErrInsufficientStock, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductNotFoundError names the product missing from the catalog or ledger.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductNotFound, e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// InvalidTransitionError reports a rejected status change. Reason is set when
// the edge exists but a guard refused it.
type InvalidTransitionError struct {
	From   domain.OrderStatus
	To     domain.OrderStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s -> %s", ErrOrderInvalidState, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrOrderInvalidState }

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
}

// mapLedgerError translates ledger failures for productID into service errors.
func mapLedgerError(productID string, requested int, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockError{ProductID: productID, Requested: requested, Available: invErr.Available}
		case repositories.InventoryErrorStockNotFound:
			return &ProductNotFoundError{ProductID: productID}
		case repositories.InventoryErrorInvalidQuantity:
			return invalidField("quantity", "must be at least 1")
		}
	}
	return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
}
