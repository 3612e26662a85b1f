package pebble

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

func openTestLedger(t *testing.T, dir string) *InventoryLedger {
	t.Helper()
	ledger, err := Open(dir)
	require.NoError(t, err)
	return ledger
}

func TestInventoryLedgerNeverOversells(t *testing.T) {
	ledger := openTestLedger(t, t.TempDir())
	t.Cleanup(func() { _ = ledger.Close() })
	ctx := context.Background()

	_, err := ledger.Release(ctx, "prod_1", 10)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, "prod_1", 3); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())
	level, err := ledger.Peek(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 1, level.Available)
}

func TestInventoryLedgerInsufficientStockLeavesCounter(t *testing.T) {
	ledger := openTestLedger(t, t.TempDir())
	t.Cleanup(func() { _ = ledger.Close() })
	ctx := context.Background()

	_, err := ledger.Release(ctx, "prod_1", 2)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, "prod_1", 5)
	var invErr *repositories.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, invErr.Code)
	assert.Equal(t, 2, invErr.Available)

	level, err := ledger.Peek(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 2, level.Available)
}

func TestInventoryLedgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ledger := openTestLedger(t, dir)
	_, err := ledger.Release(ctx, "prod_1", 7)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "prod_1", 4)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	reopened := openTestLedger(t, dir)
	t.Cleanup(func() { _ = reopened.Close() })
	level, err := reopened.Peek(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 3, level.Available)
}

func TestInventoryLedgerRejectsUnknownAndInvalid(t *testing.T) {
	ledger := openTestLedger(t, t.TempDir())
	t.Cleanup(func() { _ = ledger.Close() })
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "missing", 1)
	var invErr *repositories.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.True(t, invErr.IsNotFound())

	_, err = ledger.Release(ctx, "prod_1", 0)
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorInvalidQuantity, invErr.Code)

	assert.NoError(t, ledger.Ping(ctx))
}
