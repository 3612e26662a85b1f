package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// InventoryLedger stores counters in inventory_stock. Reserve is a single
// conditional UPDATE so the row lock taken by Postgres serialises concurrent
// reservations of one product.
type InventoryLedger struct {
	pool *pgxpool.Pool
}

var _ repositories.InventoryLedger = (*InventoryLedger)(nil)

func NewInventoryLedger(pool *pgxpool.Pool) (*InventoryLedger, error) {
	if pool == nil {
		return nil, errors.New("inventory ledger requires postgres pool")
	}
	return &InventoryLedger{pool: pool}, nil
}

func (l *InventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.reserve", productID, quantity)
	}

	level := domain.StockLevel{ProductID: productID}
	err := l.pool.QueryRow(ctx, `
UPDATE inventory_stock
SET available = available - $2, updated_at = now()
WHERE product_id = $1 AND available >= $2
RETURNING available, updated_at`, productID, quantity).Scan(&level.Available, &level.UpdatedAt)
	if err == nil {
		level.UpdatedAt = level.UpdatedAt.UTC()
		return level, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.StockLevel{}, wrapError("inventory.reserve", err)
	}

	// Either the row is missing or the guard rejected the decrement.
	current, peekErr := l.Peek(ctx, productID)
	if peekErr != nil {
		return domain.StockLevel{}, peekErr
	}
	invErr := repositories.NewInsufficientStockError(productID, quantity, current.Available)
	invErr.Op = "inventory.reserve"
	return domain.StockLevel{}, invErr
}

func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.release", productID, quantity)
	}

	level := domain.StockLevel{ProductID: productID}
	err := l.pool.QueryRow(ctx, `
INSERT INTO inventory_stock (product_id, available, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (product_id) DO UPDATE
SET available = inventory_stock.available + EXCLUDED.available, updated_at = now()
RETURNING available, updated_at`, productID, quantity).Scan(&level.Available, &level.UpdatedAt)
	if err != nil {
		return domain.StockLevel{}, wrapError("inventory.release", err)
	}
	level.UpdatedAt = level.UpdatedAt.UTC()
	return level, nil
}

func (l *InventoryLedger) Peek(ctx context.Context, productID string) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	level := domain.StockLevel{ProductID: productID}
	err := l.pool.QueryRow(ctx, `SELECT available, updated_at FROM inventory_stock WHERE product_id = $1`, productID).
		Scan(&level.Available, &level.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		notFound := repositories.NewStockNotFoundError(productID, err)
		notFound.Op = "inventory.peek"
		return domain.StockLevel{}, notFound
	}
	if err != nil {
		return domain.StockLevel{}, wrapError("inventory.peek", err)
	}
	level.UpdatedAt = level.UpdatedAt.UTC()
	return level, nil
}

func invalidQuantity(op, productID string, quantity int) error {
	err := repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("quantity for %s must be > 0, got %d", productID, quantity), nil)
	err.Op = op
	err.ProductID = productID
	return err
}
