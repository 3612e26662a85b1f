package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/pagination"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	transitionResultApplied  = "applied"
	transitionResultRejected = "rejected"

	reasonPaymentPending = "payment pending"
	maxTrackingLength    = 64
	maxReasonLength      = 500
)

// orderTransitions is the single status table used by every caller, including customer cancel.
var orderTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

var transitionEvents = map[OrderStatus]domain.OrderEventType{
	domain.OrderStatusProcessing: domain.OrderEventProcessing,
	domain.OrderStatusShipped:    domain.OrderEventShipped,
	domain.OrderStatusDelivered:  domain.OrderEventDelivered,
	domain.OrderStatusCancelled:  domain.OrderEventCancelled,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Ledger          repositories.InventoryLedger
	Events          OrderEventPublisher
	Metrics         Recorder
	ReleaseAttempts int
	ReleaseBackoff  time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	core *orderCore
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: inventory ledger is required")
	}

	logger := normaliseLogger(deps.Logger)
	metrics := normaliseRecorder(deps.Metrics)
	return &orderService{
		core: &orderCore{
			orders:   deps.Orders,
			releaser: newStockReleaser(deps.Ledger, deps.ReleaseAttempts, deps.ReleaseBackoff, metrics, logger),
			events:   deps.Events,
			metrics:  metrics,
			clock:    normaliseClock(deps.Clock),
			logger:   logger,
		},
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "is required")
	}
	order, err := s.core.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if !visibleTo(order, query.CustomerID) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	statuses := make([]OrderStatus, 0, len(filter.Status))
	for _, status := range filter.Status {
		status = OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
		if !status.Valid() {
			return domain.CursorPage[Order]{}, invalidField("status", fmt.Sprintf("unknown status %q", status))
		}
		if !slices.Contains(statuses, status) {
			statuses = append(statuses, status)
		}
	}

	size := filter.Pagination.PageSize
	switch {
	case size <= 0:
		size = pagination.DefaultPageSize
	case size > pagination.DefaultMaxPageSize:
		size = pagination.DefaultMaxPageSize
	}

	page, err := s.core.orders.List(ctx, repositories.OrderListFilter{
		CustomerID: strings.TrimSpace(filter.CustomerID),
		Status:     statuses,
		Pagination: Pagination{PageSize: size, PageToken: strings.TrimSpace(filter.Pagination.PageToken)},
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Order]{}, invalidField("pageToken", "is invalid")
		}
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target := OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.TargetStatus))))
	if !target.Valid() {
		return Order{}, invalidField("status", fmt.Sprintf("unknown status %q", cmd.TargetStatus))
	}
	tracking, err := normaliseTracking(cmd.TrackingNumber, false)
	if err != nil {
		return Order{}, err
	}
	reason, err := normaliseReason(cmd.Reason)
	if err != nil {
		return Order{}, err
	}

	return s.transition(ctx, cmd.OrderID, "", target, transitionOptions{
		tracking: tracking,
		reason:   reason,
		actor:    cmd.ActorID,
	})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	reason, err := normaliseReason(cmd.Reason)
	if err != nil {
		return Order{}, err
	}
	actor := cmd.ActorID
	if actor == "" {
		actor = cmd.CustomerID
	}
	return s.transition(ctx, cmd.OrderID, cmd.CustomerID, domain.OrderStatusCancelled, transitionOptions{
		reason: reason,
		actor:  actor,
	})
}

func (s *orderService) SetTrackingNumber(ctx context.Context, cmd SetTrackingNumberCommand) (Order, error) {
	tracking, err := normaliseTracking(cmd.TrackingNumber, true)
	if err != nil {
		return Order{}, err
	}

	result, err := s.core.mutate(ctx, cmd.OrderID, func(order *Order, _ time.Time) (domain.OrderEventType, bool, error) {
		if order.Status.Terminal() {
			return "", false, &InvalidTransitionError{From: order.Status, To: order.Status, Reason: "tracking number is frozen"}
		}
		if order.TrackingNumber == tracking {
			return "", true, nil
		}
		order.TrackingNumber = tracking
		return domain.OrderEventTracking, false, nil
	})
	if err != nil {
		return Order{}, err
	}
	if !result.skip {
		s.core.publish(ctx, result.after, result.event, cmd.ActorID, result.now)
	}
	return result.after, nil
}

type transitionOptions struct {
	tracking string
	reason   string
	actor    string
}

// transition applies one edge of the status table. When owner is set, orders
// belonging to someone else are reported as not found.
func (s *orderService) transition(ctx context.Context, orderID, owner string, target OrderStatus, opts transitionOptions) (Order, error) {
	var from OrderStatus
	result, err := s.core.mutate(ctx, orderID, func(order *Order, now time.Time) (domain.OrderEventType, bool, error) {
		if !visibleTo(*order, owner) {
			return "", false, fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
		}
		from = order.Status
		if err := applyTransition(order, target, opts, now); err != nil {
			return "", false, err
		}
		return transitionEvents[target], false, nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidState) {
			s.core.metrics.Transition(from, target, transitionResultRejected)
		}
		return Order{}, err
	}
	s.core.metrics.Transition(from, target, transitionResultApplied)

	order := result.after
	s.core.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(from),
		"to":      string(target),
		"actor":   opts.actor,
	})

	if target == domain.OrderStatusCancelled {
		// Only the writer whose version check succeeded gets here, so stock is released once.
		if failed := s.core.releaser.releaseLines(ctx, order.ID, order.LineItems, releaseReasonCancel); len(failed) > 0 {
			s.core.logger(ctx, "order.cancel.release_failed", map[string]any{
				"orderId": order.ID,
				"lines":   failedLineFields(failed),
			})
		}
	}

	s.core.publish(ctx, order, result.event, opts.actor, result.now)
	return order, nil
}

// applyTransition mutates order in place when target is reachable from its current status.
func applyTransition(order *Order, target OrderStatus, opts transitionOptions, now time.Time) error {
	from := order.Status
	if !slices.Contains(orderTransitions[from], target) {
		return &InvalidTransitionError{From: from, To: target}
	}

	switch target {
	case domain.OrderStatusShipped:
		if opts.tracking != "" {
			order.TrackingNumber = opts.tracking
		}
	case domain.OrderStatusDelivered:
		if order.PaymentStatus == domain.PaymentStatusPending {
			return &InvalidTransitionError{From: from, To: target, Reason: reasonPaymentPending}
		}
		order.IsDelivered = true
		if order.DeliveredAt == nil {
			delivered := now
			order.DeliveredAt = &delivered
		}
	case domain.OrderStatusCancelled:
		order.CancelReason = opts.reason
		cancelled := now
		order.CancelledAt = &cancelled
		if order.IsPaid && order.PaymentStatus == domain.PaymentStatusPaid {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
	}
	order.Status = target
	return nil
}

func visibleTo(order Order, owner string) bool {
	owner = strings.TrimSpace(owner)
	return owner == "" || order.CustomerID == owner
}

func normaliseTracking(value string, required bool) (string, error) {
	tracking := strings.TrimSpace(value)
	if tracking == "" {
		if required {
			return "", invalidField("trackingNumber", "is required")
		}
		return "", nil
	}
	if len(tracking) > maxTrackingLength {
		return "", invalidField("trackingNumber", fmt.Sprintf("must be at most %d characters", maxTrackingLength))
	}
	return tracking, nil
}

func normaliseReason(value string) (string, error) {
	reason := strings.TrimSpace(value)
	if len(reason) > maxReasonLength {
		return "", invalidField("reason", fmt.Sprintf("must be at most %d characters", maxReasonLength))
	}
	return reason, nil
}

func failedLineFields(lines []OrderLineItem) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		out = append(out, map[string]any{"productId": line.ProductID, "quantity": line.Quantity})
	}
	return out
}
