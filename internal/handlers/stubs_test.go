package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/services"
)

var testNow = time.Date(2024, time.June, 1, 9, 30, 0, 0, time.UTC)

// tokenVerifier accepts "<uid>" or "<uid>:<role>" bearer tokens.
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	if raw == "" || raw == "bad" {
		return nil, errors.New("token invalid")
	}
	uid, role, _ := strings.Cut(raw, ":")
	claims := map[string]any{"email": uid + "@example.com"}
	if role != "" {
		claims["role"] = role
	}
	return &firebaseauth.Token{UID: uid, Claims: claims}, nil
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenVerifier{})
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func sampleOrder(id, customer string) domain.Order {
	return domain.Order{
		ID:         id,
		CustomerID: customer,
		LineItems: []domain.OrderLineItem{
			{ProductID: "p1", Name: "Singing bowl", UnitPrice: 1500, Quantity: 2},
		},
		ShippingAddress: domain.ShippingAddress{
			FullName: "Sita Sharma", Phone: "9800000000", Email: customer + "@example.com",
			Street: "Lazimpat", City: "Kathmandu", Country: "NP",
		},
		PaymentMethod: domain.PaymentMethodEsewa,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.OrderStatusPending,
		Currency:      "NPR",
		ItemsTotal:    3000,
		ShippingFee:   100,
		GrandTotal:    3100,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
		Version:       1,
	}
}

type stubCheckout struct {
	calls []services.CreateOrderCommand
	order domain.Order
	err   error
}

func (s *stubCheckout) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.calls = append(s.calls, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.CustomerID = cmd.CustomerID
	return order, nil
}

type stubOrders struct {
	order       domain.Order
	page        domain.CursorPage[domain.Order]
	err         error
	queries     []services.OrderQuery
	filters     []services.OrderListFilter
	transitions []services.OrderStatusTransitionCommand
	cancels     []services.CancelOrderCommand
	tracking    []services.SetTrackingNumberCommand
}

func (s *stubOrders) GetOrder(_ context.Context, query services.OrderQuery) (services.Order, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return services.Order{}, s.err
	}
	if query.CustomerID != "" && query.CustomerID != s.order.CustomerID {
		return services.Order{}, services.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *stubOrders) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	s.filters = append(s.filters, filter)
	return s.page, s.err
}

func (s *stubOrders) TransitionStatus(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	s.transitions = append(s.transitions, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.Status = cmd.TargetStatus
	order.TrackingNumber = cmd.TrackingNumber
	return order, nil
}

func (s *stubOrders) Cancel(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	s.cancels = append(s.cancels, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = cmd.Reason
	return order, nil
}

func (s *stubOrders) SetTrackingNumber(_ context.Context, cmd services.SetTrackingNumberCommand) (services.Order, error) {
	s.tracking = append(s.tracking, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.TrackingNumber = cmd.TrackingNumber
	return order, nil
}

type stubPayments struct {
	order      domain.Order
	err        error
	confirms   []services.ConfirmPaymentCommand
	failures   []services.PaymentFailureCommand
	processing []services.PaymentProcessingCommand
}

func (s *stubPayments) ConfirmPayment(_ context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	s.confirms = append(s.confirms, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.IsPaid = true
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentReference = cmd.PaymentReference
	return order, nil
}

func (s *stubPayments) MarkPaymentFailed(_ context.Context, cmd services.PaymentFailureCommand) (services.Order, error) {
	s.failures = append(s.failures, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.PaymentStatus = domain.PaymentStatusFailed
	return order, nil
}

func (s *stubPayments) MarkPaymentProcessing(_ context.Context, cmd services.PaymentProcessingCommand) (services.Order, error) {
	s.processing = append(s.processing, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.PaymentStatus = domain.PaymentStatusProcessing
	return order, nil
}

type stubInventory struct {
	level    domain.StockLevel
	err      error
	restocks []services.RestockCommand
}

func (s *stubInventory) Peek(_ context.Context, productID string) (services.StockLevel, error) {
	if s.err != nil {
		return services.StockLevel{}, s.err
	}
	level := s.level
	level.ProductID = productID
	return level, nil
}

func (s *stubInventory) Restock(_ context.Context, cmd services.RestockCommand) (services.StockLevel, error) {
	s.restocks = append(s.restocks, cmd)
	if s.err != nil {
		return services.StockLevel{}, s.err
	}
	return services.StockLevel{ProductID: cmd.ProductID, Available: s.level.Available + cmd.Quantity, UpdatedAt: testNow}, nil
}

var (
	_ services.CheckoutService  = (*stubCheckout)(nil)
	_ services.OrderService     = (*stubOrders)(nil)
	_ services.PaymentService   = (*stubPayments)(nil)
	_ services.InventoryService = (*stubInventory)(nil)
)
