// Package notify publishes order status changes for customer-facing
// notification services.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"restaurant-order-system/orderstatus"
)

// StatusChangedEvent is the message body published on every applied transition.
type StatusChangedEvent struct {
	EventID    string             `json:"event_id"`
	OrderID    string             `json:"order_id"`
	From       orderstatus.Status `json:"from,omitempty"`
	To         orderstatus.Status `json:"to"`
	Message    string             `json:"message,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewStatusChangedEvent stamps a new event ID.
func NewStatusChangedEvent(orderID string, from, to orderstatus.Status, message string, at time.Time) StatusChangedEvent {
	return StatusChangedEvent{
		EventID:    uuid.New().String(),
		OrderID:    orderID,
		From:       from,
		To:         to,
		Message:    message,
		OccurredAt: at.UTC(),
	}
}

// Encode returns the JSON form of the event.
func (e StatusChangedEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// RoutingKey is "order.<status>", e.g. order.out_for_delivery.
func (e StatusChangedEvent) RoutingKey() string {
	return "order." + string(e.To)
}

// Publisher delivers status events.
type Publisher interface {
	Publish(ctx context.Context, evt StatusChangedEvent) error
	Close() error
}
