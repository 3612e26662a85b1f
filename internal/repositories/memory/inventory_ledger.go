// Package memory provides process-local repositories used by tests and single-instance development runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

type stockCell struct {
	mu        sync.Mutex
	available int
	updatedAt time.Time
}

// InventoryLedger keeps one mutex per product so reservations of different
// products never contend while each product's counter is fully serialised.
type InventoryLedger struct {
	mu    sync.RWMutex
	cells map[string]*stockCell
	now   func() time.Time
}

var _ repositories.InventoryLedger = (*InventoryLedger)(nil)

// NewInventoryLedger seeds a ledger with the given available counts.
func NewInventoryLedger(initial map[string]int) *InventoryLedger {
	ledger := &InventoryLedger{
		cells: make(map[string]*stockCell, len(initial)),
		now:   time.Now,
	}
	for id, available := range initial {
		if available < 0 {
			available = 0
		}
		ledger.cells[strings.TrimSpace(id)] = &stockCell{available: available, updatedAt: ledger.now().UTC()}
	}
	return ledger
}

func (l *InventoryLedger) Reserve(_ context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.reserve", productID, quantity)
	}

	l.mu.RLock()
	cell, ok := l.cells[productID]
	l.mu.RUnlock()
	if !ok {
		err := repositories.NewStockNotFoundError(productID, nil)
		err.Op = "inventory.reserve"
		return domain.StockLevel{}, err
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.available < quantity {
		err := repositories.NewInsufficientStockError(productID, quantity, cell.available)
		err.Op = "inventory.reserve"
		return domain.StockLevel{}, err
	}
	cell.available -= quantity
	cell.updatedAt = l.now().UTC()
	return domain.StockLevel{ProductID: productID, Available: cell.available, UpdatedAt: cell.updatedAt}, nil
}

func (l *InventoryLedger) Release(_ context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.release", productID, quantity)
	}

	cell := l.cell(productID)
	cell.mu.Lock()
	defer cell.mu.Unlock()
	cell.available += quantity
	cell.updatedAt = l.now().UTC()
	return domain.StockLevel{ProductID: productID, Available: cell.available, UpdatedAt: cell.updatedAt}, nil
}

func (l *InventoryLedger) Peek(_ context.Context, productID string) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	l.mu.RLock()
	cell, ok := l.cells[productID]
	l.mu.RUnlock()
	if !ok {
		err := repositories.NewStockNotFoundError(productID, nil)
		err.Op = "inventory.peek"
		return domain.StockLevel{}, err
	}
	cell.mu.Lock()
	defer cell.mu.Unlock()
	return domain.StockLevel{ProductID: productID, Available: cell.available, UpdatedAt: cell.updatedAt}, nil
}

func (l *InventoryLedger) cell(productID string) *stockCell {
	l.mu.RLock()
	cell, ok := l.cells[productID]
	l.mu.RUnlock()
	if ok {
		return cell
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cell, ok = l.cells[productID]; ok {
		return cell
	}
	cell = &stockCell{}
	l.cells[productID] = cell
	return cell
}

func invalidQuantity(op, productID string, quantity int) error {
	err := repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("quantity for %s must be > 0, got %d", productID, quantity), nil)
	err.Op = op
	err.ProductID = productID
	return err
}
