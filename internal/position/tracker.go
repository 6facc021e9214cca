// Package position tracks every accepted trade as a live Position until its
// market resolves. The tracker is append-mostly: positions are inserted on
// accepted bets and fills, mutated only to advance their settlement-session
// state, and removed in bulk when their market resolves.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openodds/markethub/internal/domain"
)

// Tracker is the process-wide live position set. Persistence is write-through
// to an optional store; the in-memory map stays authoritative.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position   // id -> position
	byMarket  map[string]map[string]struct{} // marketID -> position ids
	store     domain.PositionStore
	logger    *slog.Logger
}

// NewTracker creates a Tracker. store may be nil for in-memory operation.
func NewTracker(store domain.PositionStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		positions: make(map[string]*domain.Position),
		byMarket:  make(map[string]map[string]struct{}),
		store:     store,
		logger:    logger.With(slog.String("component", "position_tracker")),
	}
}

// Add records one accepted trade. Shares must be positive and cost
// non-negative; the session starts in the position's given status (open when
// empty).
func (tr *Tracker) Add(ctx context.Context, pos domain.Position) (domain.Position, error) {
	if pos.Shares <= 0 {
		return domain.Position{}, fmt.Errorf("position: shares %g must be > 0: %w", pos.Shares, domain.ErrValidation)
	}
	if pos.CostPaid < 0 {
		return domain.Position{}, fmt.Errorf("position: cost %g must be >= 0: %w", pos.CostPaid, domain.ErrValidation)
	}
	if pos.Address == "" || pos.MarketID == "" || pos.Outcome == "" {
		return domain.Position{}, fmt.Errorf("position: address, market, and outcome required: %w", domain.ErrValidation)
	}
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	if pos.SessionStatus == "" {
		pos.SessionStatus = domain.SessionStatusOpen
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now().UTC()
	}

	tr.mu.Lock()
	p := pos
	tr.positions[p.ID] = &p
	ids, ok := tr.byMarket[p.MarketID]
	if !ok {
		ids = make(map[string]struct{})
		tr.byMarket[p.MarketID] = ids
	}
	ids[p.ID] = struct{}{}
	tr.mu.Unlock()

	if tr.store != nil {
		if err := tr.store.Create(ctx, p); err != nil {
			return domain.Position{}, fmt.Errorf("position: persist %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// AdvanceSession updates a position's settlement-channel reference. The
// session status may only move forward (open -> settling -> settled);
// regressions are rejected.
func (tr *Tracker) AdvanceSession(ctx context.Context, id string, version uint64, data string, status domain.SessionStatus) (domain.Position, error) {
	tr.mu.Lock()
	p, ok := tr.positions[id]
	if !ok {
		tr.mu.Unlock()
		return domain.Position{}, fmt.Errorf("position: %s: %w", id, domain.ErrNotFound)
	}
	if !p.SessionStatus.CanAdvanceTo(status) {
		cur := p.SessionStatus
		tr.mu.Unlock()
		return domain.Position{}, fmt.Errorf("position: session %s -> %s regresses: %w", cur, status, domain.ErrInvalidTransition)
	}
	p.AppSessionVersion = version
	if data != "" {
		p.SessionData = data
	}
	p.SessionStatus = status
	updated := *p
	tr.mu.Unlock()

	if tr.store != nil {
		if err := tr.store.UpdateSession(ctx, id, version, data, status); err != nil {
			return domain.Position{}, fmt.Errorf("position: persist session %s: %w", id, err)
		}
	}
	return updated, nil
}

// ByMarket returns the live positions of one market, insertion order not
// guaranteed.
func (tr *Tracker) ByMarket(marketID string) []domain.Position {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	ids := tr.byMarket[marketID]
	out := make([]domain.Position, 0, len(ids))
	for id := range ids {
		out = append(out, *tr.positions[id])
	}
	return out
}

// ByUser returns every live position held by one address.
func (tr *Tracker) ByUser(address string) []domain.Position {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	var out []domain.Position
	for _, p := range tr.positions {
		if p.Address == address {
			out = append(out, *p)
		}
	}
	return out
}

// HasUnsettled reports whether any live position's session has not reached
// the settled state. Consulted by the LP withdrawal-lock policy.
func (tr *Tracker) HasUnsettled() bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	for _, p := range tr.positions {
		if p.SessionStatus != domain.SessionStatusSettled {
			return true
		}
	}
	return false
}

// Classify splits a market's positions into winners and losers for the given
// winning outcome. Winners pay out their share count (each share redeems for
// one unit); losers pay zero. The tracker is not mutated.
func (tr *Tracker) Classify(marketID, winner string) domain.ResolutionReport {
	positions := tr.ByMarket(marketID)

	report := domain.ResolutionReport{
		MarketID: marketID,
		Winner:   winner,
		Outcomes: make([]domain.ResolutionOutcome, 0, len(positions)),
	}
	for _, p := range positions {
		won := p.Outcome == winner
		outcome := domain.ResolutionOutcome{Position: p, Won: won}
		if won {
			outcome.Payout = p.Shares
			report.Winners++
			report.TotalPayout += p.Shares
		} else {
			report.Losers++
			report.TotalLoss += p.CostPaid
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report
}

// ClearMarket removes every position of a resolved market from the live set.
// Terminal and irreversible; returns the number removed.
func (tr *Tracker) ClearMarket(ctx context.Context, marketID string) (int, error) {
	tr.mu.Lock()
	ids := tr.byMarket[marketID]
	for id := range ids {
		delete(tr.positions, id)
	}
	removed := len(ids)
	delete(tr.byMarket, marketID)
	tr.mu.Unlock()

	if tr.store != nil {
		if _, err := tr.store.DeleteByMarket(ctx, marketID); err != nil {
			return removed, fmt.Errorf("position: clear market %s: %w", marketID, err)
		}
	}
	tr.logger.InfoContext(ctx, "cleared market positions",
		slog.String("market_id", marketID),
		slog.Int("removed", removed),
	)
	return removed, nil
}

// Load warm-starts the tracker from persisted positions of live markets.
func (tr *Tracker) Load(ctx context.Context, marketIDs []string) error {
	if tr.store == nil {
		return nil
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, marketID := range marketIDs {
		positions, err := tr.store.ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("position: load market %s: %w", marketID, err)
		}
		for _, pos := range positions {
			p := pos
			tr.positions[p.ID] = &p
			ids, ok := tr.byMarket[p.MarketID]
			if !ok {
				ids = make(map[string]struct{})
				tr.byMarket[p.MarketID] = ids
			}
			ids[p.ID] = struct{}{}
		}
	}
	return nil
}
