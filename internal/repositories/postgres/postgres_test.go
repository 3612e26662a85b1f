package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const testDSNEnv = "ORDERS_TEST_POSTGRES_DSN"

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Open(ctx, dsn, 20)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE inventory_stock, products, orders`)
	require.NoError(t, err)
	return pool
}

func TestInventoryLedgerConcurrentReserve(t *testing.T) {
	pool := newTestPool(t)
	ledger, err := NewInventoryLedger(pool)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.Release(ctx, "prod_pg", 10)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, "prod_pg", 3); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())
	level, err := ledger.Peek(ctx, "prod_pg")
	require.NoError(t, err)
	assert.Equal(t, 1, level.Available)

	_, err = ledger.Reserve(ctx, "prod_pg", 2)
	var invErr *repositories.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, invErr.Code)
	assert.Equal(t, 1, invErr.Available)

	_, err = ledger.Reserve(ctx, "unknown", 1)
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorStockNotFound, invErr.Code)
}

func TestOrderRepositoryVersionedUpdateAndList(t *testing.T) {
	pool := newTestPool(t)
	repo, err := NewOrderRepository(pool)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
	addr := domain.ShippingAddress{
		FullName: "Sita", Phone: "9800000000", Email: "sita@example.com",
		Street: "Main", City: "Pokhara", Country: "NP",
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, domain.Order{
			ID:              fmt.Sprintf("ord_%d", i),
			CustomerID:      "cus_pg",
			LineItems:       []domain.OrderLineItem{{ProductID: "prod_pg", Name: "Tea", UnitPrice: 450, Quantity: 2}},
			ShippingAddress: addr,
			PaymentMethod:   domain.PaymentMethodKhalti,
			PaymentStatus:   domain.PaymentStatusPending,
			Status:          domain.OrderStatusPending,
			Currency:        "NPR",
			ItemsTotal:      900,
			GrandTotal:      900,
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:       base.Add(time.Duration(i) * time.Hour),
		}))
	}

	err = repo.Insert(ctx, domain.Order{ID: "ord_0", CustomerID: "cus_pg", Currency: "NPR"})
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())

	order, err := repo.FindByID(ctx, "ord_2")
	require.NoError(t, err)
	assert.Equal(t, "Pokhara", order.ShippingAddress.City)
	require.Len(t, order.LineItems, 1)

	order.Status = domain.OrderStatusProcessing
	updated, err := repo.Update(ctx, order, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	_, err = repo.Update(ctx, order, 0)
	assert.ErrorIs(t, err, repositories.ErrVersionMismatch)

	_, err = repo.FindByID(ctx, "ord_missing")
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())

	page, err := repo.List(ctx, repositories.OrderListFilter{CustomerID: "cus_pg", Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ord_2", page.Items[0].ID)
	require.NotEmpty(t, page.NextPageToken)

	next, err := repo.List(ctx, repositories.OrderListFilter{CustomerID: "cus_pg", Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "ord_0", next.Items[0].ID)
	assert.Empty(t, next.NextPageToken)

	filtered, err := repo.List(ctx, repositories.OrderListFilter{Status: []domain.OrderStatus{domain.OrderStatusProcessing}})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, "ord_2", filtered.Items[0].ID)
}

func TestCatalogRepositoryFindProduct(t *testing.T) {
	pool := newTestPool(t)
	repo, err := NewCatalogRepository(pool)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = pool.Exec(ctx, `INSERT INTO products (id, name, price, currency, image_ref) VALUES ('prod_pg', 'Tea', 450, 'NPR', 'img/tea.png')`)
	require.NoError(t, err)

	product, err := repo.FindProduct(ctx, "prod_pg")
	require.NoError(t, err)
	assert.Equal(t, int64(450), product.Price)
	assert.True(t, product.Active)

	_, err = repo.FindProduct(ctx, "missing")
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())
}
