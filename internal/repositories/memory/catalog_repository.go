package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// CatalogRepository serves product snapshots from a map.
type CatalogRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a catalog seeded with products.
func NewCatalogRepository(products ...domain.Product) *CatalogRepository {
	repo := &CatalogRepository{products: make(map[string]domain.Product, len(products))}
	for _, product := range products {
		repo.Put(product)
	}
	return repo
}

// Put inserts or replaces a product.
func (r *CatalogRepository) Put(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[strings.TrimSpace(product.ID)] = product
}

func (r *CatalogRepository) FindProduct(_ context.Context, productID string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("catalog.get", fmt.Errorf("product %s not found", productID))
	}
	return product, nil
}
