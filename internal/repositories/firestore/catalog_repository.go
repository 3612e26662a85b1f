package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Name     string `firestore:"name"`
	Price    int64  `firestore:"price"`
	Currency string `firestore:"currency"`
	ImageRef string `firestore:"imageRef"`
	Active   bool   `firestore:"active"`
}

// CatalogRepository reads product documents owned by the catalog service.
type CatalogRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a read-only catalog view over the products collection.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:       productID,
		Name:     doc.Name,
		Price:    doc.Price,
		Currency: doc.Currency,
		ImageRef: doc.ImageRef,
		Active:   doc.Active,
	}, nil
}
