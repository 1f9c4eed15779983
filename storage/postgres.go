package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"restaurant-order-system/models"
	"restaurant-order-system/orderstatus"
)

// Schema creates the tables PostgresStore expects.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    status              TEXT NOT NULL,
    subtotal            NUMERIC(12,2) NOT NULL,
    discount            NUMERIC(12,2) NOT NULL,
    discounted_subtotal NUMERIC(12,2) NOT NULL,
    delivery_fee        NUMERIC(12,2) NOT NULL,
    tax                 NUMERIC(12,2) NOT NULL,
    total               NUMERIC(12,2) NOT NULL,
    promotion_code      TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_status_log (
    id          BIGSERIAL PRIMARY KEY,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    from_status TEXT NOT NULL DEFAULT '',
    to_status   TEXT NOT NULL,
    changed_by  TEXT NOT NULL DEFAULT '',
    changed_at  TIMESTAMPTZ NOT NULL
);`

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists orders in Postgres.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
}

// Connect opens a pool on url, pings it and applies Schema.
func Connect(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStore{db: pool, pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order models.Order) error {
	b := order.Breakdown
	_, err := s.db.Exec(ctx, `
WITH inserted AS (
    INSERT INTO orders (id, status, subtotal, discount, discounted_subtotal, delivery_fee, tax, total, promotion_code, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
    RETURNING id
)
INSERT INTO order_status_log (order_id, to_status, changed_by, changed_at)
SELECT id, $2, 'checkout', $10 FROM inserted`,
		order.ID, string(order.Status), b.Subtotal, b.Discount, b.DiscountedSubtotal,
		b.DeliveryFee, b.Tax, b.Total, b.PromotionCode, order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var (
		order  models.Order
		status string
	)
	err := s.db.QueryRow(ctx, `
SELECT id, status, subtotal, discount, discounted_subtotal, delivery_fee, tax, total, promotion_code, created_at, updated_at
FROM orders WHERE id = $1`, id).Scan(
		&order.ID, &status,
		&order.Breakdown.Subtotal, &order.Breakdown.Discount, &order.Breakdown.DiscountedSubtotal,
		&order.Breakdown.DeliveryFee, &order.Breakdown.Tax, &order.Breakdown.Total,
		&order.Breakdown.PromotionCode, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	order.Status = orderstatus.Status(status)
	return order, nil
}

// UpdateStatus is a compare-and-set on the status column; the log row is
// written only when the update matched.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to orderstatus.Status, actor string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
WITH updated AS (
    UPDATE orders SET status = $3, updated_at = $4
    WHERE id = $1 AND status = $2
    RETURNING id
)
INSERT INTO order_status_log (order_id, from_status, to_status, changed_by, changed_at)
SELECT id, $2, $3, $5, $4 FROM updated`,
		id, string(from), string(to), at, actor)
	if err != nil {
		return fmt.Errorf("failed to update status of order %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetOrder(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

func (s *PostgresStore) History(ctx context.Context, id string) ([]models.StatusChange, error) {
	rows, err := s.db.Query(ctx, `
SELECT from_status, to_status, changed_by, changed_at
FROM order_status_log WHERE order_id = $1
ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of order %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.StatusChange
	for rows.Next() {
		var (
			change   models.StatusChange
			from, to string
		)
		if err := rows.Scan(&from, &to, &change.Actor, &change.ChangedAt); err != nil {
			return nil, err
		}
		change.From = orderstatus.Status(from)
		change.To = orderstatus.Status(to)
		out = append(out, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
