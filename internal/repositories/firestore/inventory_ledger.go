package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const inventoryCollection = "inventory"

type stockDocument struct {
	ProductID string    `firestore:"productId"`
	Available int       `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (s stockDocument) toDomain(id string) domain.StockLevel {
	return domain.StockLevel{ProductID: id, Available: s.Available, UpdatedAt: s.UpdatedAt.UTC()}
}

// InventoryLedger keeps one document per product in the inventory collection.
// Reserve and Release run as Firestore transactions, which serialise concurrent
// writers to the same document and retry on contention.
type InventoryLedger struct {
	stocks *pfirestore.BaseRepository[stockDocument]
	now    func() time.Time
}

var _ repositories.InventoryLedger = (*InventoryLedger)(nil)

// NewInventoryLedger constructs a Firestore-backed ledger.
func NewInventoryLedger(provider *pfirestore.Provider) (*InventoryLedger, error) {
	if provider == nil {
		return nil, errors.New("inventory ledger requires firestore provider")
	}
	return &InventoryLedger{
		stocks: pfirestore.NewBaseRepository[stockDocument](provider, inventoryCollection, nil),
		now:    time.Now,
	}, nil
}

func (l *InventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.reserve", productID, quantity)
	}

	var level domain.StockLevel
	err := l.stocks.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := l.stocks.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewStockNotFoundError(productID, err)
			}
			return err
		}
		doc, err := l.stocks.Decode(snap)
		if err != nil {
			return fmt.Errorf("decode inventory stock %s: %w", productID, err)
		}
		if doc.Available < quantity {
			return repositories.NewInsufficientStockError(productID, quantity, doc.Available)
		}
		doc.ProductID = productID
		doc.Available -= quantity
		doc.UpdatedAt = l.now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		level = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.StockLevel{}, wrapInventoryError("inventory.reserve", err)
	}
	return level, nil
}

func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.release", productID, quantity)
	}

	var level domain.StockLevel
	err := l.stocks.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := l.stocks.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		doc := stockDocument{ProductID: productID}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if doc, err = l.stocks.Decode(snap); err != nil {
				return fmt.Errorf("decode inventory stock %s: %w", productID, err)
			}
		case pfirestore.IsNotFound(err):
		default:
			return err
		}
		doc.ProductID = productID
		doc.Available += quantity
		doc.UpdatedAt = l.now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		level = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.StockLevel{}, wrapInventoryError("inventory.release", err)
	}
	return level, nil
}

func (l *InventoryLedger) Peek(ctx context.Context, productID string) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	doc, err := l.stocks.Get(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.StockLevel{}, repositories.NewStockNotFoundError(productID, err)
		}
		return domain.StockLevel{}, err
	}
	return doc.toDomain(productID), nil
}

func invalidQuantity(op, productID string, quantity int) error {
	err := repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("quantity for %s must be > 0, got %d", productID, quantity), nil)
	err.Op = op
	err.ProductID = productID
	return err
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
