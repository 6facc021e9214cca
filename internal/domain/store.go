package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market state. The live market.Manager is
// authoritative; writes here are write-through and reads are used only to
// warm-start after a restart.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListLive(ctx context.Context) ([]Market, error)
	ListByGame(ctx context.Context, gameID string, opts ListOpts) ([]Market, error)
	NextSeq(ctx context.Context, gameID, categoryID string) (int, error)
}

// PositionStore persists live positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	UpdateSession(ctx context.Context, id string, version uint64, data string, status SessionStatus) error
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, address string, opts ListOpts) ([]Position, error)
	DeleteByMarket(ctx context.Context, marketID string) (int64, error)
}

// OrderStore persists peer-to-peer orders.
type OrderStore interface {
	Upsert(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListOpenByMarket(ctx context.Context, marketID string) ([]Order, error)
	ListByUser(ctx context.Context, address string, opts ListOpts) ([]Order, error)
}

// LPStore persists liquidity-provider holdings and the pool audit log.
type LPStore interface {
	UpsertShare(ctx context.Context, share LPShare) error
	GetShare(ctx context.Context, address string) (LPShare, error)
	ListShares(ctx context.Context) ([]LPShare, error)
	AppendEvent(ctx context.Context, evt LPEvent) error
	ListEvents(ctx context.Context, opts ListOpts) ([]LPEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
