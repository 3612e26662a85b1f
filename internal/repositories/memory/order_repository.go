package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/pagination"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// OrderRepository stores orders in a map guarded by a single mutex; Update is a
// version compare-and-swap under that mutex.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty in-memory order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]domain.Order)}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("orders.insert: order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.NewConflictError("orders.insert", fmt.Errorf("order %s already exists", order.ID))
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Update(_ context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.update", fmt.Errorf("order %s not found", order.ID))
	}
	if current.Version != expectedVersion {
		return domain.Order{}, repositories.NewConflictError("orders.update", fmt.Errorf("%w: order %s at version %d, expected %d", repositories.ErrVersionMismatch, order.ID, current.Version, expectedVersion))
	}
	stored := order.Clone()
	stored.Version = expectedVersion + 1
	r.orders[order.ID] = stored
	return stored.Clone(), nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.get", fmt.Errorf("order %s not found", orderID))
	}
	return order.Clone(), nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	statuses := make(map[domain.OrderStatus]struct{}, len(filter.Status))
	for _, status := range filter.Status {
		statuses[status] = struct{}{}
	}

	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[order.Status]; !ok {
				continue
			}
		}
		if !cursor.After(order.CreatedAt, order.ID) {
			continue
		}
		matched = append(matched, order.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := domain.CursorPage[domain.Order]{}
	if len(matched) > size {
		last := matched[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
		matched = matched[:size]
	}
	page.Items = matched
	return page, nil
}
