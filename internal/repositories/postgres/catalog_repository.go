package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// CatalogRepository reads the products table.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(pool *pgxpool.Pool) (*CatalogRepository, error) {
	if pool == nil {
		return nil, errors.New("catalog repository requires postgres pool")
	}
	return &CatalogRepository{pool: pool}, nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	product := domain.Product{ID: strings.TrimSpace(productID)}
	err := r.pool.QueryRow(ctx, `SELECT name, price, currency, image_ref, active FROM products WHERE id = $1`, product.ID).
		Scan(&product.Name, &product.Price, &product.Currency, &product.ImageRef, &product.Active)
	if err != nil {
		return domain.Product{}, wrapError("products.find", err)
	}
	return product, nil
}
