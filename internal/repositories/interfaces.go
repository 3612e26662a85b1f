package repositories

import (
	"context"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Inventory() InventoryLedger
	Orders() OrderRepository
	Catalog() CatalogRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// InventoryLedger owns the per-product available stock counters.
//
// Reserve must check and decrement in one indivisible step and leave the counter
// untouched when it fails with InventoryErrorInsufficientStock. Release always
// succeeds barring infrastructure failures and creates the counter if missing.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
	Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
	Peek(ctx context.Context, productID string) (domain.StockLevel, error)
}

// OrderRepository persists orders. Update is a compare-and-swap on Version: it
// fails with a conflict error when the stored version differs from expectedVersion
// and stores the order with Version set to expectedVersion+1 otherwise.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CatalogRepository resolves the product data snapshotted into order lines.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings. Orders are returned newest first.
type OrderListFilter struct {
	CustomerID string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}
