package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/orderengine/internal/repositories"
)

func TestInventoryLedgerReserveNeverOversells(t *testing.T) {
	ledger := NewInventoryLedger(map[string]int{"sku-1": 10})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), "sku-1", 3)
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load())
	assert.Equal(t, int32(47), rejected.Load())

	level, err := ledger.Peek(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 1, level.Available)
}

func TestInventoryLedgerInsufficientStockLeavesCounter(t *testing.T) {
	ledger := NewInventoryLedger(map[string]int{"sku-1": 2})

	_, err := ledger.Reserve(context.Background(), "sku-1", 3)
	var invErr *repositories.InventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, invErr.Code)
	assert.Equal(t, 2, invErr.Available)
	assert.Equal(t, "sku-1", invErr.ProductID)

	level, err := ledger.Peek(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 2, level.Available)
}

func TestInventoryLedgerReleaseCreatesCounter(t *testing.T) {
	ledger := NewInventoryLedger(nil)

	level, err := ledger.Release(context.Background(), "sku-new", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, level.Available)

	level, err = ledger.Reserve(context.Background(), "sku-new", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Available)
}

func TestInventoryLedgerRejectsUnknownAndInvalid(t *testing.T) {
	ledger := NewInventoryLedger(map[string]int{"sku-1": 1})

	_, err := ledger.Reserve(context.Background(), "missing", 1)
	var invErr *repositories.InventoryError
	require.ErrorAs(t, err, &invErr)
	assert.True(t, invErr.IsNotFound())

	_, err = ledger.Reserve(context.Background(), "sku-1", 0)
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorInvalidQuantity, invErr.Code)

	_, err = ledger.Release(context.Background(), "sku-1", -1)
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorInvalidQuantity, invErr.Code)
}
