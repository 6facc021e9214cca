package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openodds/markethub/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, game_id, category_id, status,
			outcomes, quantities, liquidity_b, winner,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status      = EXCLUDED.status,
			quantities  = EXCLUDED.quantities,
			winner      = EXCLUDED.winner,
			updated_at  = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.GameID, m.CategoryID, string(m.Status),
		m.Outcomes, m.Quantities, m.B, m.Winner,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns a single market by its ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	const query = `
		SELECT id, game_id, category_id, status,
		       outcomes, quantities, liquidity_b, winner,
		       created_at, updated_at
		FROM markets
		WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListLive returns every market that has not resolved, in creation order.
// Used to warm-start the in-memory market manager.
func (s *MarketStore) ListLive(ctx context.Context) ([]domain.Market, error) {
	const query = `
		SELECT id, game_id, category_id, status,
		       outcomes, quantities, liquidity_b, winner,
		       created_at, updated_at
		FROM markets
		WHERE status != 'resolved'
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list live markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// ListByGame returns a game's markets, newest first.
func (s *MarketStore) ListByGame(ctx context.Context, gameID string, opts domain.ListOpts) ([]domain.Market, error) {
	query := `
		SELECT id, game_id, category_id, status,
		       outcomes, quantities, liquidity_b, winner,
		       created_at, updated_at
		FROM markets
		WHERE game_id = $1
		ORDER BY created_at DESC`
	args := []any{gameID}

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
		return nil, fmt.Errorf("postgres: list markets for game %s: %w", gameID, err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// NextSeq returns the next sequence number for a (game, category) pair.
// Market IDs embed the sequence as their final dash-separated segment.
func (s *MarketStore) NextSeq(ctx context.Context, gameID, categoryID string) (int, error) {
	const query = `
		SELECT COALESCE(MAX(split_part(id, '-', -1)::int), 0) + 1
		FROM markets
		WHERE game_id = $1 AND category_id = $2`

	var next int
	if err := s.pool.QueryRow(ctx, query, gameID, categoryID).Scan(&next); err != nil {
		return 0, fmt.Errorf("postgres: next seq for %s/%s: %w", gameID, categoryID, err)
	}
	return next, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.GameID, &m.CategoryID, &status,
		&m.Outcomes, &m.Quantities, &m.B, &m.Winner,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return markets, nil
}
