package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openodds/markethub/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert mirrors an order's current book state into the store.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			order_id, market_id, game_id, address, outcome,
			mcps, amount, filled_amount, unfilled_amount,
			max_shares, filled_shares, unfilled_shares,
			status, app_session_id, app_session_version,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, NOW()
		)
		ON CONFLICT (order_id) DO UPDATE SET
			filled_amount       = EXCLUDED.filled_amount,
			unfilled_amount     = EXCLUDED.unfilled_amount,
			filled_shares       = EXCLUDED.filled_shares,
			unfilled_shares     = EXCLUDED.unfilled_shares,
			status              = EXCLUDED.status,
			app_session_id      = EXCLUDED.app_session_id,
			app_session_version = EXCLUDED.app_session_version,
			updated_at          = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.OrderID, o.MarketID, o.GameID, o.UserAddress, o.Outcome,
		o.MCPS, o.Amount, o.FilledAmount, o.UnfilledAmount,
		o.MaxShares, o.FilledShares, o.UnfilledShares,
		string(o.Status), o.AppSessionID, o.AppSessionVersion,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.OrderID, err)
	}
	return nil
}

// GetByID returns a single order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	const query = orderSelect + ` WHERE order_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListOpenByMarket returns a market's resting orders in time priority. Used
// to rebuild the book after a restart.
func (s *OrderStore) ListOpenByMarket(ctx context.Context, marketID string) ([]domain.Order, error) {
	const query = orderSelect + `
		WHERE market_id = $1 AND status IN ('OPEN', 'PARTIALLY_FILLED')
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders for %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListByUser returns a user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Order, error) {
	query := orderSelect + `
		WHERE address = $1
		ORDER BY created_at DESC`
	args := []any{address}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", address, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

const orderSelect = `
	SELECT order_id, market_id, game_id, address, outcome,
	       mcps, amount, filled_amount, unfilled_amount,
	       max_shares, filled_shares, unfilled_shares,
	       status, app_session_id, app_session_version,
	       created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(
		&o.OrderID, &o.MarketID, &o.GameID, &o.UserAddress, &o.Outcome,
		&o.MCPS, &o.Amount, &o.FilledAmount, &o.UnfilledAmount,
		&o.MaxShares, &o.FilledShares, &o.UnfilledShares,
		&status, &o.AppSessionID, &o.AppSessionVersion,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return orders, nil
}
