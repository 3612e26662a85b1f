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
	"github.com/hanko-field/orderengine/internal/platform/pagination"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders as single documents keyed by order ID.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order store.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	var stored domain.Order
	err := r.orders.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewNotFoundError("orders.update", fmt.Errorf("order %s not found", order.ID))
			}
			return err
		}
		current, err := r.orders.Decode(snap)
		if err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if current.Version != expectedVersion {
			return repositories.NewConflictError("orders.update", fmt.Errorf("%w: order %s at version %d, expected %d", repositories.ErrVersionMismatch, order.ID, current.Version, expectedVersion))
		}

		next := order.Clone()
		next.Version = expectedVersion + 1
		if err := tx.Set(ref, newOrderDocument(next)); err != nil {
			return err
		}
		stored = next
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return stored, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			q = q.Where("customerId", "==", filter.CustomerID)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.toDomain(doc.ID))
	}
	if len(page.Items) > size {
		page.Items = page.Items[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderDocument struct {
	ID               string              `firestore:"id"`
	CustomerID       string              `firestore:"customerId"`
	LineItems        []orderLineDocument `firestore:"lineItems"`
	ShippingAddress  addressDocument     `firestore:"shippingAddress"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentStatus    string              `firestore:"paymentStatus"`
	PaymentReference string              `firestore:"paymentReference,omitempty"`
	IsPaid           bool                `firestore:"isPaid"`
	Status           string              `firestore:"status"`
	TrackingNumber   string              `firestore:"trackingNumber,omitempty"`
	IsDelivered      bool                `firestore:"isDelivered"`
	Currency         string              `firestore:"currency"`
	ItemsTotal       int64               `firestore:"itemsTotal"`
	ShippingFee      int64               `firestore:"shippingFee"`
	GrandTotal       int64               `firestore:"grandTotal"`
	CancelReason     string              `firestore:"cancelReason,omitempty"`
	PaidAt           *time.Time          `firestore:"paidAt,omitempty"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	Version          int64               `firestore:"version"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	ImageRef  string `firestore:"imageRef,omitempty"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName"`
	Phone      string `firestore:"phone"`
	Email      string `firestore:"email"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	Province   string `firestore:"province,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		lines = append(lines, orderLineDocument(item))
	}
	return orderDocument{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		LineItems:        lines,
		ShippingAddress:  addressDocument(order.ShippingAddress),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentReference: order.PaymentReference,
		IsPaid:           order.IsPaid,
		Status:           string(order.Status),
		TrackingNumber:   order.TrackingNumber,
		IsDelivered:      order.IsDelivered,
		Currency:         order.Currency,
		ItemsTotal:       order.ItemsTotal,
		ShippingFee:      order.ShippingFee,
		GrandTotal:       order.GrandTotal,
		CancelReason:     order.CancelReason,
		PaidAt:           utcPointer(order.PaidAt),
		DeliveredAt:      utcPointer(order.DeliveredAt),
		CancelledAt:      utcPointer(order.CancelledAt),
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		Version:          order.Version,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLineItem, 0, len(d.LineItems))
	for _, line := range d.LineItems {
		lines = append(lines, domain.OrderLineItem(line))
	}
	if d.ID == "" {
		d.ID = id
	}
	return domain.Order{
		ID:               d.ID,
		CustomerID:       d.CustomerID,
		LineItems:        lines,
		ShippingAddress:  domain.ShippingAddress(d.ShippingAddress),
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		PaymentReference: d.PaymentReference,
		IsPaid:           d.IsPaid,
		Status:           domain.OrderStatus(d.Status),
		TrackingNumber:   d.TrackingNumber,
		IsDelivered:      d.IsDelivered,
		Currency:         d.Currency,
		ItemsTotal:       d.ItemsTotal,
		ShippingFee:      d.ShippingFee,
		GrandTotal:       d.GrandTotal,
		CancelReason:     d.CancelReason,
		PaidAt:           utcPointer(d.PaidAt),
		DeliveredAt:      utcPointer(d.DeliveredAt),
		CancelledAt:      utcPointer(d.CancelledAt),
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		Version:          d.Version,
	}
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
