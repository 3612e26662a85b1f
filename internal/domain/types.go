package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus captures the fulfilment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending is assigned at checkout before any fulfilment work starts.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates staff accepted the order for fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the parcel left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled and its stock released.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every known order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is one of the known values.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus captures the settlement state reported by the payment gateway.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Valid reports whether the payment status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentMethod is the wallet the customer selected at checkout.
type PaymentMethod string

const (
	PaymentMethodEsewa  PaymentMethod = "esewa"
	PaymentMethodKhalti PaymentMethod = "khalti"
)

// Valid reports whether the payment method is accepted at checkout.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodEsewa || m == PaymentMethodKhalti
}

// Product is the catalog projection needed to price a checkout line.
type Product struct {
	ID       string
	Name     string
	Price    int64
	Currency string
	ImageRef string
	Active   bool
}

// StockLevel is a point-in-time view of a product's available counter.
type StockLevel struct {
	ProductID string
	Available int
	UpdatedAt time.Time
}

// CartLine is a single product/quantity pair submitted at checkout.
type CartLine struct {
	ProductID string
	Quantity  int
}

// ShippingAddress is embedded in the order at checkout time.
type ShippingAddress struct {
	FullName   string
	Phone      string
	Email      string
	Street     string
	City       string
	Province   string
	PostalCode string
	Country    string
}

// OrderLineItem freezes catalog data for a purchased product.
type OrderLineItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageRef  string
}

// Subtotal returns the line's contribution to the items total.
func (l OrderLineItem) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Order is the persisted aggregate driven by checkout and the status controller.
type Order struct {
	ID               string
	CustomerID       string
	LineItems        []OrderLineItem
	ShippingAddress  ShippingAddress
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string
	IsPaid           bool
	Status           OrderStatus
	TrackingNumber   string
	IsDelivered      bool
	Currency         string
	ItemsTotal       int64
	ShippingFee      int64
	GrandTotal       int64
	CancelReason     string
	PaidAt           *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// Version increments on every persisted mutation and backs optimistic concurrency.
	Version int64
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (o Order) Clone() Order {
	out := o
	if o.LineItems != nil {
		out.LineItems = make([]OrderLineItem, len(o.LineItems))
		copy(out.LineItems, o.LineItems)
	}
	out.PaidAt = cloneTime(o.PaidAt)
	out.DeliveredAt = cloneTime(o.DeliveredAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// OrderEventType names lifecycle notifications emitted after a committed change.
type OrderEventType string

const (
	OrderEventCreated    OrderEventType = "order.created"
	OrderEventProcessing OrderEventType = "order.processing"
	OrderEventShipped    OrderEventType = "order.shipped"
	OrderEventDelivered  OrderEventType = "order.delivered"
	OrderEventCancelled  OrderEventType = "order.cancelled"
	OrderEventPaid       OrderEventType = "order.paid"
	OrderEventPayFailed  OrderEventType = "order.payment_failed"
	OrderEventRefunded   OrderEventType = "order.payment_refunded"
	OrderEventTracking   OrderEventType = "order.tracking_updated"
)

// OrderEvent is the payload handed to notifiers.
type OrderEvent struct {
	ID             string
	Type           OrderEventType
	OrderID        string
	CustomerID     string
	Email          string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	TrackingNumber string
	GrandTotal     int64
	Currency       string
	ActorID        string
	OccurredAt     time.Time
}

// HealthStatus values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck captures the result of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
