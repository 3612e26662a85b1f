package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
)

var testNow = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (l *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.fields = append(l.fields, fields)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order, int64) (domain.Order, error)
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, expected int64) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expected)
	}
	order.Version = expected + 1
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubLedger struct {
	reserveFn func(context.Context, string, int) (domain.StockLevel, error)
	releaseFn func(context.Context, string, int) (domain.StockLevel, error)
	peekFn    func(context.Context, string) (domain.StockLevel, error)
}

func (s *stubLedger) Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, productID, quantity)
	}
	return domain.StockLevel{ProductID: productID}, nil
}

func (s *stubLedger) Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, productID, quantity)
	}
	return domain.StockLevel{ProductID: productID}, nil
}

func (s *stubLedger) Peek(ctx context.Context, productID string) (domain.StockLevel, error) {
	if s.peekFn != nil {
		return s.peekFn(ctx, productID)
	}
	return domain.StockLevel{ProductID: productID}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	releases map[string]int
	payments map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		outcomes: map[string]int{},
		releases: map[string]int{},
		payments: map[string]int{},
	}
}

func (r *countingRecorder) CheckoutOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *countingRecorder) Reservation(string) {}

func (r *countingRecorder) Release(reason string, units int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases[reason] += units
}

func (r *countingRecorder) Transition(OrderStatus, OrderStatus, string) {}

func (r *countingRecorder) PaymentConfirmation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[result]++
}

func validAddress() ShippingAddress {
	return ShippingAddress{
		FullName: "Ram Bahadur",
		Phone:    "+977-9800000000",
		Email:    "ram@example.com",
		Street:   "Durbar Marg 1",
		City:     "Kathmandu",
		Country:  "NP",
	}
}

func seededOrder(id, customer string, status OrderStatus, lines ...OrderLineItem) Order {
	return Order{
		ID:              id,
		CustomerID:      customer,
		LineItems:       lines,
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodEsewa,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          status,
		Currency:        "NPR",
		CreatedAt:       testNow.Add(-time.Hour),
		UpdatedAt:       testNow.Add(-time.Hour),
	}
}

func mustInsert(repo *memory.OrderRepository, order Order) {
	if err := repo.Insert(context.Background(), order); err != nil {
		panic(err)
	}
}
