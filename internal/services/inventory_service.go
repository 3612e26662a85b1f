package services

import (
	"context"
	"errors"
	"strings"

	"github.com/hanko-field/orderengine/internal/repositories"
)

const maxRestockQuantity = 1_000_000

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Ledger  repositories.InventoryLedger
	Metrics Recorder
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	ledger  repositories.InventoryLedger
	metrics Recorder
	logger  func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("inventory service: inventory ledger is required")
	}
	return &inventoryService{
		ledger:  deps.Ledger,
		metrics: normaliseRecorder(deps.Metrics),
		logger:  normaliseLogger(deps.Logger),
	}, nil
}

// Peek returns the current counter. The value may be stale by the time the caller acts on it.
func (s *inventoryService) Peek(ctx context.Context, productID string) (StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockLevel{}, invalidField("productId", "is required")
	}
	level, err := s.ledger.Peek(ctx, productID)
	if err != nil {
		return StockLevel{}, mapLedgerError(productID, 0, err)
	}
	return level, nil
}

// Restock adds units through the ledger's release primitive so it composes with
// concurrent reservations. It is attempted once: a retried increment could double count.
func (s *inventoryService) Restock(ctx context.Context, cmd RestockCommand) (StockLevel, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return StockLevel{}, invalidField("productId", "is required")
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxRestockQuantity {
		return StockLevel{}, invalidField("quantity", "must be between 1 and 1000000")
	}

	level, err := s.ledger.Release(ctx, productID, cmd.Quantity)
	if err != nil {
		return StockLevel{}, mapLedgerError(productID, cmd.Quantity, err)
	}
	s.metrics.Release(releaseReasonRestock, cmd.Quantity)
	s.logger(ctx, "inventory.restocked", map[string]any{
		"productId": productID,
		"quantity":  cmd.Quantity,
		"available": level.Available,
		"actor":     strings.TrimSpace(cmd.ActorID),
	})
	return level, nil
}
