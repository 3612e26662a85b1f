package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/notify"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherSendKeysByOrder(t *testing.T) {
	writer := &fakeWriter{}
	pub, err := NewPublisher(writer)
	require.NoError(t, err)

	occurred := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	err = pub.Send(context.Background(), domain.OrderEvent{
		ID:         "evt-7",
		Type:       domain.OrderEventShipped,
		OrderID:    "ord_7",
		Status:     domain.OrderStatusShipped,
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ord_7", string(msg.Key))
	assert.True(t, msg.Time.Equal(occurred))
	assert.Equal(t, []kafkago.Header{
		{Key: "eventId", Value: []byte("evt-7")},
		{Key: "eventType", Value: []byte("order.shipped")},
	}, msg.Headers)

	var payload notify.Message
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "shipped", payload.Status)
	assert.Equal(t, "evt-7", payload.EventID)

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestPublisherSendWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	pub, err := NewPublisher(&fakeWriter{err: boom})
	require.NoError(t, err)

	err = pub.Send(context.Background(), domain.OrderEvent{Type: domain.OrderEventCreated, OrderID: "ord_1"})
	require.ErrorIs(t, err, boom)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestNewWriterUsesHashBalancer(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "order-events")
	assert.Equal(t, "order-events", w.Topic)
	assert.IsType(t, &kafkago.Hash{}, w.Balancer)
}
