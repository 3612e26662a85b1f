package memory

import (
	"context"

	"github.com/hanko-field/orderengine/internal/repositories"
)

// Registry bundles the in-memory repositories for local runs and tests.
type Registry struct {
	orders  *OrderRepository
	catalog *CatalogRepository
	ledger  *InventoryLedger
	health  repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires the given catalog and ledger with a fresh order store.
// Nil arguments are replaced with empty repositories.
func NewRegistry(catalog *CatalogRepository, ledger *InventoryLedger) *Registry {
	if catalog == nil {
		catalog = NewCatalogRepository()
	}
	if ledger == nil {
		ledger = NewInventoryLedger(nil)
	}
	health, _ := repositories.NewDependencyHealthRepository(nil)
	return &Registry{
		orders:  NewOrderRepository(),
		catalog: catalog,
		ledger:  ledger,
		health:  health,
	}
}

func (r *Registry) Inventory() repositories.InventoryLedger { return r.ledger }
func (r *Registry) Orders() repositories.OrderRepository    { return r.orders }
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }
func (r *Registry) Health() repositories.HealthRepository   { return r.health }
func (r *Registry) Close(context.Context) error             { return nil }
