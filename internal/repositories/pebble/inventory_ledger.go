// Package pebble provides a single-node inventory ledger persisted in an embedded Pebble store.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const keyPrefix = "stock/"

type stockRecord struct {
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InventoryLedger serialises read-modify-write cycles per product with an
// in-process mutex and persists each counter with a synced write. Only one
// process may open the directory at a time.
type InventoryLedger struct {
	db  *pebble.DB
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ repositories.InventoryLedger = (*InventoryLedger)(nil)

// Open opens or creates the ledger stored under dir.
func Open(dir string) (*InventoryLedger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("pebble ledger: directory is required")
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &InventoryLedger{
		db:    db,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Close flushes and closes the store.
func (l *InventoryLedger) Close() error { return l.db.Close() }

// Ping reports whether the store still accepts reads.
func (l *InventoryLedger) Ping(context.Context) error {
	_, closer, err := l.db.Get([]byte(keyPrefix))
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (l *InventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.reserve", productID, quantity)
	}
	if err := ctx.Err(); err != nil {
		return domain.StockLevel{}, err
	}

	lock := l.lockFor(productID)
	lock.Lock()
	defer lock.Unlock()

	rec, found, err := l.read(productID)
	if err != nil {
		return domain.StockLevel{}, repositories.NewUnavailableError("inventory.reserve", err)
	}
	if !found {
		notFound := repositories.NewStockNotFoundError(productID, nil)
		notFound.Op = "inventory.reserve"
		return domain.StockLevel{}, notFound
	}
	if rec.Available < quantity {
		invErr := repositories.NewInsufficientStockError(productID, quantity, rec.Available)
		invErr.Op = "inventory.reserve"
		return domain.StockLevel{}, invErr
	}

	rec.Available -= quantity
	rec.UpdatedAt = l.now().UTC()
	if err := l.write(productID, rec); err != nil {
		return domain.StockLevel{}, repositories.NewUnavailableError("inventory.reserve", err)
	}
	return rec.toDomain(productID), nil
}

func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.StockLevel{}, invalidQuantity("inventory.release", productID, quantity)
	}
	if err := ctx.Err(); err != nil {
		return domain.StockLevel{}, err
	}

	lock := l.lockFor(productID)
	lock.Lock()
	defer lock.Unlock()

	rec, _, err := l.read(productID)
	if err != nil {
		return domain.StockLevel{}, repositories.NewUnavailableError("inventory.release", err)
	}
	rec.Available += quantity
	rec.UpdatedAt = l.now().UTC()
	if err := l.write(productID, rec); err != nil {
		return domain.StockLevel{}, repositories.NewUnavailableError("inventory.release", err)
	}
	return rec.toDomain(productID), nil
}

func (l *InventoryLedger) Peek(_ context.Context, productID string) (domain.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	rec, found, err := l.read(productID)
	if err != nil {
		return domain.StockLevel{}, repositories.NewUnavailableError("inventory.peek", err)
	}
	if !found {
		notFound := repositories.NewStockNotFoundError(productID, nil)
		notFound.Op = "inventory.peek"
		return domain.StockLevel{}, notFound
	}
	return rec.toDomain(productID), nil
}

func (l *InventoryLedger) lockFor(productID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[productID] = lock
	}
	return lock
}

func (l *InventoryLedger) read(productID string) (stockRecord, bool, error) {
	value, closer, err := l.db.Get(stockKey(productID))
	if errors.Is(err, pebble.ErrNotFound) {
		return stockRecord{}, false, nil
	}
	if err != nil {
		return stockRecord{}, false, err
	}
	defer closer.Close()

	var rec stockRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return stockRecord{}, false, fmt.Errorf("decode stock %s: %w", productID, err)
	}
	return rec, true, nil
}

func (l *InventoryLedger) write(productID string, rec stockRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.db.Set(stockKey(productID), payload, pebble.Sync)
}

func (r stockRecord) toDomain(productID string) domain.StockLevel {
	return domain.StockLevel{ProductID: productID, Available: r.Available, UpdatedAt: r.UpdatedAt.UTC()}
}

func stockKey(productID string) []byte {
	return []byte(keyPrefix + productID)
}

func invalidQuantity(op, productID string, quantity int) error {
	err := repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("quantity for %s must be > 0, got %d", productID, quantity), nil)
	err.Op = op
	err.ProductID = productID
	return err
}
