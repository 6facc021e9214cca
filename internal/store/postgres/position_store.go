package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openodds/markethub/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Create inserts a new position row.
func (s *PositionStore) Create(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, address, market_id, outcome,
			shares, cost_paid, fee,
			app_session_id, app_session_version, session_data, session_status,
			mode, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.Address, pos.MarketID, pos.Outcome,
		pos.Shares, pos.CostPaid, pos.Fee,
		pos.AppSessionID, pos.AppSessionVersion, pos.SessionData, string(pos.SessionStatus),
		string(pos.Mode), pos.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", pos.ID, err)
	}
	return nil
}

// UpdateSession advances a position's settlement-session reference.
func (s *PositionStore) UpdateSession(ctx context.Context, id string, version uint64, data string, status domain.SessionStatus) error {
	const query = `
		UPDATE positions SET
			app_session_version = $2,
			session_data        = CASE WHEN $3 = '' THEN session_data ELSE $3 END,
			session_status      = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, version, data, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update session for position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByMarket returns a market's positions in insertion order.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	const query = `
		SELECT id, address, market_id, outcome,
		       shares, cost_paid, fee,
		       app_session_id, app_session_version, session_data, session_status,
		       mode, created_at
		FROM positions
		WHERE market_id = $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListByUser returns a user's positions, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `
		SELECT id, address, market_id, outcome,
		       shares, cost_paid, fee,
		       app_session_id, app_session_version, session_data, session_status,
		       mode, created_at
		FROM positions
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
		return nil, fmt.Errorf("postgres: list positions for %s: %w", address, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// DeleteByMarket removes all of a resolved market's positions, returning the
// number deleted.
func (s *PositionStore) DeleteByMarket(ctx context.Context, marketID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE market_id = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete positions for market %s: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var sessionStatus, mode string
		err := rows.Scan(
			&p.ID, &p.Address, &p.MarketID, &p.Outcome,
			&p.Shares, &p.CostPaid, &p.Fee,
			&p.AppSessionID, &p.AppSessionVersion, &p.SessionData, &sessionStatus,
			&mode, &p.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.SessionStatus = domain.SessionStatus(sessionStatus)
		p.Mode = domain.PositionMode(mode)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}
