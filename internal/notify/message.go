package notify

import (
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// Message is the wire representation shared by the broker sinks.
type Message struct {
	EventID        string    `json:"eventId"`
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	CustomerID     string    `json:"customerId"`
	Email          string    `json:"email,omitempty"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"paymentStatus"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	GrandTotal     int64     `json:"grandTotal"`
	Currency       string    `json:"currency"`
	ActorID        string    `json:"actorId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NewMessage converts a domain event into its wire form.
func NewMessage(event domain.OrderEvent) Message {
	return Message{
		EventID:        event.ID,
		Type:           string(event.Type),
		OrderID:        event.OrderID,
		CustomerID:     event.CustomerID,
		Email:          event.Email,
		Status:         string(event.Status),
		PaymentStatus:  string(event.PaymentStatus),
		TrackingNumber: event.TrackingNumber,
		GrandTotal:     event.GrandTotal,
		Currency:       event.Currency,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
	}
}
