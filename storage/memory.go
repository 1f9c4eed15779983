package storage

import (
	"context"
	"sync"
	"time"

	"restaurant-order-system/models"
	"restaurant-order-system/orderstatus"
)

// MemoryStore keeps orders in process memory. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]models.Order
	history map[string][]models.StatusChange
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]models.Order),
		history: make(map[string][]models.StatusChange),
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return ErrDuplicate
	}
	s.orders[order.ID] = order
	s.history[order.ID] = []models.StatusChange{{To: order.Status, ChangedAt: order.CreatedAt}}
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return order, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to orderstatus.Status, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if order.Status != from {
		return ErrStaleStatus
	}
	order.Status = to
	order.UpdatedAt = at
	s.orders[id] = order
	s.history[id] = append(s.history[id], models.StatusChange{From: from, To: to, Actor: actor, ChangedAt: at})
	return nil
}

func (s *MemoryStore) History(_ context.Context, id string) ([]models.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.history[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.StatusChange, len(h))
	copy(out, h)
	return out, nil
}
