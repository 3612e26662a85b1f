package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	paymentResultPaid      = "paid"
	paymentResultDuplicate = "duplicate"
	paymentResultConflict  = "conflict"
	paymentResultRefunded  = "refunded"

	maxPaymentReferenceLength = 128
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders  repositories.OrderRepository
	Events  OrderEventPublisher
	Metrics Recorder
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	core *orderCore
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	return &paymentService{
		core: &orderCore{
			orders:  deps.Orders,
			events:  deps.Events,
			metrics: normaliseRecorder(deps.Metrics),
			clock:   normaliseClock(deps.Clock),
			logger:  normaliseLogger(deps.Logger),
		},
	}, nil
}

// ConfirmPayment marks the order paid. Replaying the same reference is a no-op;
// any other reference on an already settled order is a conflict. A capture that
// lands after the order was cancelled is recorded and flagged for refund.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	reference := strings.TrimSpace(cmd.PaymentReference)
	if reference == "" {
		return Order{}, invalidField("paymentReference", "is required")
	}
	if len(reference) > maxPaymentReferenceLength {
		return Order{}, invalidField("paymentReference", fmt.Sprintf("must be at most %d characters", maxPaymentReferenceLength))
	}

	result, err := s.core.mutate(ctx, cmd.OrderID, func(order *Order, now time.Time) (domain.OrderEventType, bool, error) {
		switch order.PaymentStatus {
		case domain.PaymentStatusPaid, domain.PaymentStatusRefunded:
			if order.PaymentReference == reference {
				return "", true, nil
			}
			return "", false, fmt.Errorf("%w: order %s payment is %s with a different reference", ErrOrderConflict, order.ID, order.PaymentStatus)
		case domain.PaymentStatusFailed:
			return "", false, fmt.Errorf("%w: order %s payment is %s", ErrOrderConflict, order.ID, order.PaymentStatus)
		}
		paidAt := now
		order.PaymentReference = reference
		order.IsPaid = true
		order.PaidAt = &paidAt
		if order.Status == domain.OrderStatusCancelled {
			order.PaymentStatus = domain.PaymentStatusRefunded
			return domain.OrderEventRefunded, false, nil
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		return domain.OrderEventPaid, false, nil
	})
	switch {
	case err != nil:
		if errors.Is(err, ErrOrderConflict) {
			s.core.metrics.PaymentConfirmation(paymentResultConflict)
			s.core.logger(ctx, "order.payment.confirm_conflict", map[string]any{
				"orderId":   strings.TrimSpace(cmd.OrderID),
				"reference": reference,
				"error":     err.Error(),
			})
		}
		return Order{}, err
	case result.skip:
		s.core.metrics.PaymentConfirmation(paymentResultDuplicate)
		return result.after, nil
	}

	if result.event == domain.OrderEventRefunded {
		s.core.metrics.PaymentConfirmation(paymentResultRefunded)
		s.core.logger(ctx, "order.payment.refund_required", map[string]any{
			"orderId":   result.after.ID,
			"reference": reference,
			"amount":    result.after.GrandTotal,
		})
	} else {
		s.core.metrics.PaymentConfirmation(paymentResultPaid)
		s.core.logger(ctx, "order.payment.confirmed", map[string]any{
			"orderId":   result.after.ID,
			"reference": reference,
		})
	}
	s.core.publish(ctx, result.after, result.event, cmd.ActorID, result.now)
	return result.after, nil
}

func (s *paymentService) MarkPaymentFailed(ctx context.Context, cmd PaymentFailureCommand) (Order, error) {
	reason, err := normaliseReason(cmd.Reason)
	if err != nil {
		return Order{}, err
	}

	result, err := s.core.mutate(ctx, cmd.OrderID, func(order *Order, _ time.Time) (domain.OrderEventType, bool, error) {
		switch order.PaymentStatus {
		case domain.PaymentStatusFailed:
			return "", true, nil
		case domain.PaymentStatusPending, domain.PaymentStatusProcessing:
			order.PaymentStatus = domain.PaymentStatusFailed
			return domain.OrderEventPayFailed, false, nil
		default:
			return "", false, fmt.Errorf("%w: order %s payment is %s", ErrOrderConflict, order.ID, order.PaymentStatus)
		}
	})
	if err != nil {
		return Order{}, err
	}
	if result.skip {
		return result.after, nil
	}

	s.core.logger(ctx, "order.payment.failed", map[string]any{
		"orderId": result.after.ID,
		"reason":  reason,
	})
	s.core.publish(ctx, result.after, result.event, cmd.ActorID, result.now)
	return result.after, nil
}

func (s *paymentService) MarkPaymentProcessing(ctx context.Context, cmd PaymentProcessingCommand) (Order, error) {
	result, err := s.core.mutate(ctx, cmd.OrderID, func(order *Order, _ time.Time) (domain.OrderEventType, bool, error) {
		switch order.PaymentStatus {
		case domain.PaymentStatusProcessing:
			return "", true, nil
		case domain.PaymentStatusPending:
			if order.Status == domain.OrderStatusCancelled {
				return "", false, fmt.Errorf("%w: order %s is cancelled", ErrOrderConflict, order.ID)
			}
			order.PaymentStatus = domain.PaymentStatusProcessing
			return "", false, nil
		default:
			return "", false, fmt.Errorf("%w: order %s payment is %s", ErrOrderConflict, order.ID, order.PaymentStatus)
		}
	})
	if err != nil {
		return Order{}, err
	}
	return result.after, nil
}
