package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
)

func newPaymentFixture(t *testing.T) (PaymentService, *memory.OrderRepository, *recordingPublisher, *recordingLogger, *countingRecorder) {
	t.Helper()
	orders := memory.NewOrderRepository()
	publisher := &recordingPublisher{}
	logger := &recordingLogger{}
	metrics := newCountingRecorder()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:  orders,
		Events:  publisher,
		Metrics: metrics,
		Clock:   fixedClock,
		Logger:  logger.log,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc, orders, publisher, logger, metrics
}

func TestPaymentServiceConfirmPayment(t *testing.T) {
	svc, orders, publisher, _, metrics := newPaymentFixture(t)
	mustInsert(orders, seededOrder("ord_1", "cus_1", domain.OrderStatusPending))

	paid, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: " esewa-77 "})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if paid.PaymentStatus != domain.PaymentStatusPaid || !paid.IsPaid || paid.PaymentReference != "esewa-77" {
		t.Fatalf("unexpected payment fields %+v", paid)
	}
	if paid.PaidAt == nil || !paid.PaidAt.Equal(testNow) {
		t.Fatalf("expected paidAt %s, got %v", testNow, paid.PaidAt)
	}
	if paid.Status != domain.OrderStatusPending {
		t.Fatalf("payment must not move fulfilment status, got %s", paid.Status)
	}

	replay, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "esewa-77"})
	if err != nil {
		t.Fatalf("replayed confirmation: %v", err)
	}
	if replay.Version != paid.Version {
		t.Fatalf("replay must not write, version %d vs %d", replay.Version, paid.Version)
	}

	types := publisher.types()
	if len(types) != 1 || types[0] != domain.OrderEventPaid {
		t.Fatalf("expected single order.paid event, got %v", types)
	}
	if metrics.payments[paymentResultPaid] != 1 || metrics.payments[paymentResultDuplicate] != 1 {
		t.Fatalf("unexpected payment metrics %v", metrics.payments)
	}
}

func TestPaymentServiceConfirmConflicts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Order)
	}{
		{
			name: "different reference",
			setup: func(o *Order) {
				o.PaymentStatus = domain.PaymentStatusPaid
				o.PaymentReference = "khalti-1"
				o.IsPaid = true
			},
		},
		{
			name:  "payment failed",
			setup: func(o *Order) { o.PaymentStatus = domain.PaymentStatusFailed },
		},
		{
			name: "refunded with a different reference",
			setup: func(o *Order) {
				o.Status = domain.OrderStatusCancelled
				o.PaymentStatus = domain.PaymentStatusRefunded
				o.PaymentReference = "khalti-1"
				o.IsPaid = true
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, orders, publisher, logger, metrics := newPaymentFixture(t)
			order := seededOrder("ord_1", "cus_1", domain.OrderStatusPending)
			tc.setup(&order)
			mustInsert(orders, order)

			_, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "esewa-2"})
			if !errors.Is(err, ErrOrderConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}
			if len(publisher.types()) != 0 {
				t.Fatalf("conflict must not publish")
			}
			if !logger.has("order.payment.confirm_conflict") {
				t.Fatalf("expected conflict to be logged")
			}
			if metrics.payments[paymentResultConflict] != 1 {
				t.Fatalf("expected conflict metric")
			}
		})
	}
}

func TestPaymentServiceConfirmValidation(t *testing.T) {
	svc, orders, _, _, _ := newPaymentFixture(t)
	mustInsert(orders, seededOrder("ord_1", "cus_1", domain.OrderStatusPending))

	if _, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "  "}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected blank reference rejected, got %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{PaymentReference: "x"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected missing order id rejected, got %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "missing", PaymentReference: "x"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPaymentServiceMarkFailed(t *testing.T) {
	svc, orders, publisher, _, _ := newPaymentFixture(t)
	mustInsert(orders, seededOrder("ord_1", "cus_1", domain.OrderStatusPending))
	paid := seededOrder("ord_2", "cus_1", domain.OrderStatusPending)
	paid.PaymentStatus = domain.PaymentStatusPaid
	mustInsert(orders, paid)

	failed, err := svc.MarkPaymentFailed(context.Background(), PaymentFailureCommand{OrderID: "ord_1", Reason: "card declined"})
	if err != nil {
		t.Fatalf("MarkPaymentFailed: %v", err)
	}
	if failed.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", failed.PaymentStatus)
	}
	if _, err := svc.MarkPaymentFailed(context.Background(), PaymentFailureCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("repeat failure should be a no-op: %v", err)
	}
	types := publisher.types()
	if len(types) != 1 || types[0] != domain.OrderEventPayFailed {
		t.Fatalf("expected one payment_failed event, got %v", types)
	}

	if _, err := svc.MarkPaymentFailed(context.Background(), PaymentFailureCommand{OrderID: "ord_2"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for paid order, got %v", err)
	}
}

func TestPaymentServiceMarkProcessing(t *testing.T) {
	svc, orders, publisher, _, _ := newPaymentFixture(t)
	mustInsert(orders, seededOrder("ord_1", "cus_1", domain.OrderStatusPending))
	mustInsert(orders, seededOrder("ord_2", "cus_1", domain.OrderStatusCancelled))

	processing, err := svc.MarkPaymentProcessing(context.Background(), PaymentProcessingCommand{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("MarkPaymentProcessing: %v", err)
	}
	if processing.PaymentStatus != domain.PaymentStatusProcessing {
		t.Fatalf("expected processing, got %s", processing.PaymentStatus)
	}
	again, err := svc.MarkPaymentProcessing(context.Background(), PaymentProcessingCommand{OrderID: "ord_1"})
	if err != nil || again.Version != processing.Version {
		t.Fatalf("repeat should be a no-op, got %v version %d", err, again.Version)
	}
	if len(publisher.types()) != 0 {
		t.Fatalf("processing must not publish events")
	}

	if _, err := svc.MarkPaymentProcessing(context.Background(), PaymentProcessingCommand{OrderID: "ord_2"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for cancelled order, got %v", err)
	}

	if _, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "esewa-9"}); err != nil {
		t.Fatalf("processing payment should still confirm: %v", err)
	}
}

func TestPaymentServiceConfirmAfterCancelFlagsRefund(t *testing.T) {
	svc, orders, publisher, logger, metrics := newPaymentFixture(t)
	ledger := memory.NewInventoryLedger(map[string]int{"a": 0})
	orderSvc, err := NewOrderService(OrderServiceDeps{Orders: orders, Ledger: ledger, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	mustInsert(orders, seededOrder("ord_1", "cus_1", domain.OrderStatusPending, line("a", 2)))

	ctx := context.Background()
	if _, err := svc.MarkPaymentProcessing(ctx, PaymentProcessingCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("MarkPaymentProcessing: %v", err)
	}
	cancelled, err := orderSvc.Cancel(ctx, CancelOrderCommand{OrderID: "ord_1", CustomerID: "cus_1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.PaymentStatus != domain.PaymentStatusProcessing {
		t.Fatalf("unpaid cancel must keep payment status, got %s", cancelled.PaymentStatus)
	}

	captured, err := svc.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "esewa-1"})
	if err != nil {
		t.Fatalf("ConfirmPayment after cancel: %v", err)
	}
	if captured.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected order to stay cancelled, got %s", captured.Status)
	}
	if captured.PaymentStatus != domain.PaymentStatusRefunded || !captured.IsPaid || captured.PaymentReference != "esewa-1" {
		t.Fatalf("unexpected payment fields %+v", captured)
	}
	if captured.PaidAt == nil || !captured.PaidAt.Equal(testNow) {
		t.Fatalf("expected paidAt %s, got %v", testNow, captured.PaidAt)
	}

	replay, err := svc.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: "ord_1", PaymentReference: "esewa-1"})
	if err != nil {
		t.Fatalf("gateway retry: %v", err)
	}
	if replay.Version != captured.Version {
		t.Fatalf("retry must not write, version %d vs %d", replay.Version, captured.Version)
	}

	types := publisher.types()
	if len(types) != 1 || types[0] != domain.OrderEventRefunded {
		t.Fatalf("expected single order.payment_refunded event, got %v", types)
	}
	if !logger.has("order.payment.refund_required") {
		t.Fatalf("expected refund to be logged")
	}
	if metrics.payments[paymentResultRefunded] != 1 || metrics.payments[paymentResultDuplicate] != 1 {
		t.Fatalf("unexpected payment metrics %v", metrics.payments)
	}
	level, err := ledger.Peek(ctx, "a")
	if err != nil || level.Available != 2 {
		t.Fatalf("cancel should have released stock once, got %+v err %v", level, err)
	}
}
