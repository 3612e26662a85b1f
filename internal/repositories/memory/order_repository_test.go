package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

func TestOrderRepositoryUpdateCompareAndSwap(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	order := domain.Order{ID: "ord_1", CustomerID: "cust", Status: domain.OrderStatusPending, Version: 1}
	require.NoError(t, repo.Insert(ctx, order))

	order.Status = domain.OrderStatusCancelled
	updated, err := repo.Update(ctx, order, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = repo.Update(ctx, order, 1)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())
	assert.True(t, errors.Is(err, repositories.ErrVersionMismatch))

	stored, err := repo.FindByID(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
}

func TestOrderRepositoryInsertDuplicateAndMissing(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, domain.Order{ID: "ord_1"}))

	err := repo.Insert(ctx, domain.Order{ID: "ord_1"})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	_, err = repo.FindByID(ctx, "ord_missing")
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestOrderRepositoryStoredCopyIsIsolated(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	order := domain.Order{ID: "ord_1", LineItems: []domain.OrderLineItem{{ProductID: "p", Quantity: 1}}}
	require.NoError(t, repo.Insert(ctx, order))

	order.LineItems[0].Quantity = 99
	stored, err := repo.FindByID(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LineItems[0].Quantity)
}

func TestOrderRepositoryListPagesNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, domain.Order{
			ID:         fmt.Sprintf("ord_%d", i),
			CustomerID: "cust",
			Status:     domain.OrderStatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Insert(ctx, domain.Order{ID: "ord_other", CustomerID: "someone", CreatedAt: base}))

	first, err := repo.List(ctx, repositories.OrderListFilter{CustomerID: "cust", Pagination: domain.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Equal(t, "ord_4", first.Items[0].ID)
	assert.NotEmpty(t, first.NextPageToken)

	second, err := repo.List(ctx, repositories.OrderListFilter{CustomerID: "cust", Pagination: domain.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "ord_1", second.Items[0].ID)
	assert.Equal(t, "ord_0", second.Items[1].ID)
	assert.Empty(t, second.NextPageToken)
}
