package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to a zap logger. It stands in for RabbitMQ when
// no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt StatusChangedEvent) error {
	p.Logger.Info("order status changed",
		zap.String("event_id", evt.EventID),
		zap.String("order_id", evt.OrderID),
		zap.String("from", string(evt.From)),
		zap.String("to", string(evt.To)),
		zap.String("message", evt.Message),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
