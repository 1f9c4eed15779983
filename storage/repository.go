// Package storage persists orders and their status history. The pricing,
// availability and status packages never import it.
package storage

import (
	"context"
	"errors"
	"time"

	"restaurant-order-system/models"
	"restaurant-order-system/orderstatus"
)

var (
	// ErrNotFound is returned when no order has the requested ID.
	ErrNotFound = errors.New("order not found")
	// ErrStaleStatus is returned when the stored status no longer matches
	// the status the transition was validated against.
	ErrStaleStatus = errors.New("order status changed concurrently")
	// ErrDuplicate is returned when an order ID is saved twice.
	ErrDuplicate = errors.New("order already exists")
)

// OrderRepository is implemented by PostgresStore and MemoryStore.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id string) (models.Order, error)
	// UpdateStatus moves the order from `from` to `to` only if its stored
	// status is still `from`.
	UpdateStatus(ctx context.Context, id string, from, to orderstatus.Status, actor string, at time.Time) error
	History(ctx context.Context, id string) ([]models.StatusChange, error)
}
