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
	maxMutationAttempts    = 5
	defaultReleaseAttempts = 5
	defaultReleaseBackoff  = 200 * time.Millisecond

	releaseReasonRollback = "rollback"
	releaseReasonCancel   = "cancel"
	releaseReasonRestock  = "restock"
)

// orderCore holds the collaborators shared by the order and payment services.
type orderCore struct {
	orders   repositories.OrderRepository
	releaser *stockReleaser
	events   OrderEventPublisher
	metrics  Recorder
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// mutation edits a working copy of the order. Returning skip=true commits
// nothing and hands back the stored order unchanged.
type mutation func(order *Order, now time.Time) (event domain.OrderEventType, skip bool, err error)

type mutationResult struct {
	before Order
	after  Order
	event  domain.OrderEventType
	now    time.Time
	skip   bool
}

// mutate loads the order, applies fn and writes it back with a version check.
// A lost race reloads and re-evaluates fn against the fresh state, so rules are
// always judged against what is actually stored.
func (c *orderCore) mutate(ctx context.Context, orderID string, fn mutation) (mutationResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return mutationResult{}, invalidField("orderId", "is required")
	}

	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		current, err := c.orders.FindByID(ctx, orderID)
		if err != nil {
			return mutationResult{}, mapOrderRepositoryError(err)
		}

		now := c.clock()
		working := current.Clone()
		event, skip, err := fn(&working, now)
		if err != nil {
			return mutationResult{before: current}, err
		}
		if skip {
			return mutationResult{before: current, after: current, skip: true, now: now}, nil
		}

		working.UpdatedAt = now
		stored, err := c.orders.Update(ctx, working, current.Version)
		if err == nil {
			return mutationResult{before: current, after: stored, event: event, now: now}, nil
		}
		if !errors.Is(err, repositories.ErrVersionMismatch) {
			return mutationResult{before: current}, mapOrderRepositoryError(err)
		}
		c.logger(ctx, "order.mutation.retry", map[string]any{
			"orderId": orderID,
			"attempt": attempt,
		})
	}
	return mutationResult{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderConflict, orderID)
}

func (c *orderCore) publish(ctx context.Context, order Order, eventType domain.OrderEventType, actor string, now time.Time) {
	if c.events == nil || eventType == "" {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Email:          order.ShippingAddress.Email,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		TrackingNumber: order.TrackingNumber,
		GrandTotal:     order.GrandTotal,
		Currency:       order.Currency,
		ActorID:        strings.TrimSpace(actor),
		OccurredAt:     now,
	}
	if err := c.events.PublishOrderEvent(ctx, event); err != nil {
		c.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    string(event.Type),
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

// stockReleaser returns units to the ledger, retrying transient failures.
type stockReleaser struct {
	ledger   repositories.InventoryLedger
	attempts int
	backoff  time.Duration
	metrics  Recorder
	logger   func(context.Context, string, map[string]any)
	sleep    func(context.Context, time.Duration) error
}

func newStockReleaser(ledger repositories.InventoryLedger, attempts int, backoff time.Duration, metrics Recorder, logger func(context.Context, string, map[string]any)) *stockReleaser {
	if attempts <= 0 {
		attempts = defaultReleaseAttempts
	}
	if backoff < 0 {
		backoff = defaultReleaseBackoff
	}
	return &stockReleaser{
		ledger:   ledger,
		attempts: attempts,
		backoff:  backoff,
		metrics:  metrics,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// releaseLines releases every line and reports the lines that could not be
// returned. Releases run detached from ctx cancellation.
func (r *stockReleaser) releaseLines(ctx context.Context, orderID string, lines []OrderLineItem, reason string) []OrderLineItem {
	ctx = context.WithoutCancel(ctx)
	var failed []OrderLineItem
	for _, line := range lines {
		if err := r.release(ctx, line.ProductID, line.Quantity); err != nil {
			failed = append(failed, line)
			r.logger(ctx, "inventory.release.failed", map[string]any{
				"orderId":   orderID,
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"reason":    reason,
				"error":     err.Error(),
			})
			continue
		}
		r.metrics.Release(reason, line.Quantity)
	}
	return failed
}

func (r *stockReleaser) release(ctx context.Context, productID string, quantity int) error {
	var err error
	delay := r.backoff
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if _, err = r.ledger.Release(ctx, productID, quantity); err == nil {
			return nil
		}
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			// typed ledger errors are not transient
			return err
		}
		if attempt == r.attempts {
			break
		}
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
		delay *= 2
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normaliseLogger(logger func(context.Context, string, map[string]any)) func(context.Context, string, map[string]any) {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

func normaliseClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

func normaliseRecorder(metrics Recorder) Recorder {
	if metrics == nil {
		return noopRecorder{}
	}
	return metrics
}
