// Package notify delivers committed order events to downstream sinks off the request path.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

const defaultDispatchTimeout = 10 * time.Second

// ErrDispatcherClosed is returned once Close has been called.
var ErrDispatcherClosed = errors.New("notify: dispatcher closed")

// Sink delivers a single event to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, event domain.OrderEvent) error
}

// Recorder counts delivery attempts per sink.
type Recorder interface {
	NotifierPublish(sink, result string)
}

// Option customises the dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each sink delivery.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRecorder records per-sink delivery outcomes.
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

// WithIDGenerator overrides event id generation, mainly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// Dispatcher fans events out to every sink in a background goroutine.
// PublishOrderEvent never blocks on a sink.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics Recorder
	newID   func() string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a dispatcher over sinks. Nil sinks are ignored.
func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: defaultDispatchTimeout,
		logger:  zap.NewNop(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, sink := range sinks {
		if sink != nil {
			d.sinks = append(d.sinks, sink)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// PublishOrderEvent schedules delivery and returns immediately.
func (d *Dispatcher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = d.newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if len(d.sinks) == 0 {
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(context.WithoutCancel(ctx), event)
	}()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.OrderEvent) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Send(sendCtx, event)
		cancel()

		result := "ok"
		if err != nil {
			result = "error"
			d.logger.Warn("order event delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("eventId", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("orderId", event.OrderID),
				zap.Error(err),
			)
		}
		if d.metrics != nil {
			d.metrics.NotifierPublish(sink.Name(), result)
		}
	}
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close rejects new events and waits for in-flight deliveries or ctx expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
