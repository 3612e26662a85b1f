package services

import (
	"context"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Order           = domain.Order
	OrderLineItem   = domain.OrderLineItem
	OrderStatus     = domain.OrderStatus
	OrderEvent      = domain.OrderEvent
	PaymentMethod   = domain.PaymentMethod
	PaymentStatus   = domain.PaymentStatus
	ShippingAddress = domain.ShippingAddress
	CartLine        = domain.CartLine
	StockLevel      = domain.StockLevel
)

// CheckoutService converts a cart into a pending order, reserving stock for every line.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
}

// OrderService reads orders and drives the fulfilment status machine.
type OrderService interface {
	GetOrder(ctx context.Context, query OrderQuery) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	SetTrackingNumber(ctx context.Context, cmd SetTrackingNumberCommand) (Order, error)
}

// PaymentService applies payment gateway outcomes to orders.
type PaymentService interface {
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	MarkPaymentFailed(ctx context.Context, cmd PaymentFailureCommand) (Order, error)
	MarkPaymentProcessing(ctx context.Context, cmd PaymentProcessingCommand) (Order, error)
}

// InventoryService exposes staff-facing stock operations.
type InventoryService interface {
	Peek(ctx context.Context, productID string) (StockLevel, error)
	Restock(ctx context.Context, cmd RestockCommand) (StockLevel, error)
}

// OrderEventPublisher receives lifecycle events once the order write has committed.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// Recorder receives engine counters. Implementations must be safe for concurrent use.
type Recorder interface {
	CheckoutOutcome(outcome string)
	Reservation(result string)
	Release(reason string, units int)
	Transition(from, to OrderStatus, result string)
	PaymentConfirmation(result string)
}

type noopRecorder struct{}

func (noopRecorder) CheckoutOutcome(string)                      {}
func (noopRecorder) Reservation(string)                          {}
func (noopRecorder) Release(string, int)                         {}
func (noopRecorder) Transition(OrderStatus, OrderStatus, string) {}
func (noopRecorder) PaymentConfirmation(string)                  {}

// CreateOrderCommand carries the checkout payload.
type CreateOrderCommand struct {
	CustomerID      string
	Lines           []CartLine
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
}

// OrderQuery loads one order. A non-empty CustomerID restricts visibility to that owner.
type OrderQuery struct {
	OrderID    string
	CustomerID string
}

// OrderListFilter narrows listings; an empty CustomerID lists every customer's orders.
type OrderListFilter struct {
	CustomerID string
	Status     []OrderStatus
	Pagination Pagination
}

// OrderStatusTransitionCommand moves an order along the status table.
type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	TrackingNumber string
	Reason         string
	ActorID        string
}

// CancelOrderCommand cancels an order. A non-empty CustomerID enforces ownership.
type CancelOrderCommand struct {
	OrderID    string
	CustomerID string
	Reason     string
	ActorID    string
}

// SetTrackingNumberCommand records the carrier tracking number.
type SetTrackingNumberCommand struct {
	OrderID        string
	TrackingNumber string
	ActorID        string
}

// ConfirmPaymentCommand records a gateway-confirmed payment.
type ConfirmPaymentCommand struct {
	OrderID          string
	PaymentReference string
	ActorID          string
}

// PaymentFailureCommand records a gateway-reported failure.
type PaymentFailureCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// PaymentProcessingCommand records that the customer started paying.
type PaymentProcessingCommand struct {
	OrderID string
	ActorID string
}

// RestockCommand adds units to a product's available counter.
type RestockCommand struct {
	ProductID string
	Quantity  int
	ActorID   string
}
