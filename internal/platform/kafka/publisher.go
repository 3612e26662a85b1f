// Package kafka publishes order events to a Kafka topic keyed by order id.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/notify"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher sends order events to Kafka. Keying by order id keeps one order's
// events on one partition, in commit order.
type Publisher struct {
	writer MessageWriter
}

var _ notify.Sink = (*Publisher)(nil)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter builds a hash-balanced writer that waits for the partition leader.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewPublisher wraps writer.
func NewPublisher(writer MessageWriter) (*Publisher, error) {
	if writer == nil {
		return nil, errors.New("kafka publisher: writer is required")
	}
	return &Publisher{writer: writer}, nil
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Send(ctx context.Context, event domain.OrderEvent) error {
	data, err := json.Marshal(notify.NewMessage(event))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  event.OccurredAt.UTC(),
		Headers: []kafkago.Header{
			{Key: "eventId", Value: []byte(event.ID)},
			{Key: "eventType", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
