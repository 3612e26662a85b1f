package notify

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// LogSink writes events to the structured log. It backs local runs that have no broker.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink; a nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, event domain.OrderEvent) error {
	s.logger.Info("order event",
		zap.String("eventId", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("orderId", event.OrderID),
		zap.String("customerId", event.CustomerID),
		zap.String("status", string(event.Status)),
		zap.String("paymentStatus", string(event.PaymentStatus)),
		zap.Int64("grandTotal", event.GrandTotal),
		zap.String("actor", event.ActorID),
		zap.Time("occurredAt", event.OccurredAt),
	)
	return nil
}
