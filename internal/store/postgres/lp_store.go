package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openodds/markethub/internal/domain"
)

// LPStore implements domain.LPStore using PostgreSQL.
type LPStore struct {
	pool *pgxpool.Pool
}

// NewLPStore creates a new LPStore backed by the given connection pool.
func NewLPStore(pool *pgxpool.Pool) *LPStore {
	return &LPStore{pool: pool}
}

// UpsertShare writes one LP's cumulative holding.
func (s *LPStore) UpsertShare(ctx context.Context, share domain.LPShare) error {
	const query = `
		INSERT INTO lp_shares (address, shares, total_deposited, total_withdrawn, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (address) DO UPDATE SET
			shares          = EXCLUDED.shares,
			total_deposited = EXCLUDED.total_deposited,
			total_withdrawn = EXCLUDED.total_withdrawn,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		share.Address, share.Shares, share.TotalDeposited, share.TotalWithdrawn,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert lp share %s: %w", share.Address, err)
	}
	return nil
}

// GetShare returns one LP's holding.
func (s *LPStore) GetShare(ctx context.Context, address string) (domain.LPShare, error) {
	const query = `
		SELECT address, shares, total_deposited, total_withdrawn, updated_at
		FROM lp_shares
		WHERE address = $1`

	var share domain.LPShare
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&share.Address, &share.Shares, &share.TotalDeposited, &share.TotalWithdrawn, &share.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LPShare{}, fmt.Errorf("postgres: lp share %s: %w", address, domain.ErrNotFound)
		}
		return domain.LPShare{}, fmt.Errorf("postgres: get lp share %s: %w", address, err)
	}
	return share, nil
}

// ListShares returns every LP holding.
func (s *LPStore) ListShares(ctx context.Context) ([]domain.LPShare, error) {
	const query = `
		SELECT address, shares, total_deposited, total_withdrawn, updated_at
		FROM lp_shares
		ORDER BY address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lp shares: %w", err)
	}
	defer rows.Close()

	var shares []domain.LPShare
	for rows.Next() {
		var share domain.LPShare
		err := rows.Scan(
			&share.Address, &share.Shares, &share.TotalDeposited, &share.TotalWithdrawn, &share.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan lp share: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate lp shares: %w", err)
	}
	return shares, nil
}

// AppendEvent writes one immutable pool audit log entry.
func (s *LPStore) AppendEvent(ctx context.Context, evt domain.LPEvent) error {
	const query = `
		INSERT INTO lp_events (id, kind, address, amount, shares, share_price, pool_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		evt.ID, string(evt.Kind), evt.Address,
		evt.Amount, evt.Shares, evt.SharePrice, evt.PoolValue,
		evt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append lp event %s: %w", evt.ID, err)
	}
	return nil
}

// ListEvents returns pool audit log entries, newest first.
func (s *LPStore) ListEvents(ctx context.Context, opts domain.ListOpts) ([]domain.LPEvent, error) {
	query := `
		SELECT id, kind, address, amount, shares, share_price, pool_value, created_at
		FROM lp_events
		WHERE 1=1`
	args := []any{}

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", len(args)+1)
		args = append(args, *opts.Until)
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list lp events: %w", err)
	}
	defer rows.Close()

	var events []domain.LPEvent
	for rows.Next() {
		var evt domain.LPEvent
		var kind string
		err := rows.Scan(
			&evt.ID, &kind, &evt.Address,
			&evt.Amount, &evt.Shares, &evt.SharePrice, &evt.PoolValue,
			&evt.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan lp event: %w", err)
		}
		evt.Kind = domain.LPEventKind(kind)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate lp events: %w", err)
	}
	return events, nil
}
