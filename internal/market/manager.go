// Package market owns the live Market entities and their lifecycle:
// PENDING -> OPEN -> CLOSED -> RESOLVED. The Manager is a process-wide
// singleton; all mutation of one market's quantities happens under that
// market's own mutex so concurrent bets never interleave a read-modify-write.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/lmsr"
)

// entry pairs a market with the mutex serializing its mutations.
type entry struct {
	mu sync.Mutex
	m  domain.Market
}

// Manager owns all live markets. Persistence is write-through to the store;
// the in-memory map stays authoritative.
type Manager struct {
	mu      sync.RWMutex
	markets map[string]*entry
	seq     map[string]int // (gameID|categoryID) -> last allocated n
	store   domain.MarketStore
	logger  *slog.Logger
}

// NewManager creates a Manager. store may be nil, in which case markets live
// only in memory (used by tests and ephemeral deployments).
func NewManager(store domain.MarketStore, logger *slog.Logger) *Manager {
	return &Manager{
		markets: make(map[string]*entry),
		seq:     make(map[string]int),
		store:   store,
		logger:  logger.With(slog.String("component", "market_manager")),
	}
}

func pairKey(gameID, categoryID string) string {
	return gameID + "|" + categoryID
}

// Load warm-starts the manager from persisted live markets after a restart.
func (mg *Manager) Load(ctx context.Context) error {
	if mg.store == nil {
		return nil
	}
	markets, err := mg.store.ListLive(ctx)
	if err != nil {
		return fmt.Errorf("market: load live markets: %w", err)
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	for _, m := range markets {
		mg.markets[m.ID] = &entry{m: m}
	}
	mg.logger.InfoContext(ctx, "loaded live markets", slog.Int("count", len(markets)))
	return nil
}

// Create allocates a new PENDING market with a zero quantity vector (uniform
// 1/N prices). It fails with ErrAlreadyExists when an unresolved market
// already exists for the same (game, category) pair: at most one live market
// per category.
func (mg *Manager) Create(ctx context.Context, gameID, categoryID string, outcomes []string, b float64) (domain.MarketView, error) {
	if gameID == "" || categoryID == "" {
		return domain.MarketView{}, fmt.Errorf("market: game and category required: %w", domain.ErrValidation)
	}
	if len(outcomes) < lmsr.MinOutcomes {
		return domain.MarketView{}, fmt.Errorf("market: need at least %d outcomes: %w", lmsr.MinOutcomes, domain.ErrValidation)
	}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if o == "" || seen[o] {
			return domain.MarketView{}, fmt.Errorf("market: outcomes must be non-empty and unique: %w", domain.ErrValidation)
		}
		seen[o] = true
	}
	quantities := make([]float64, len(outcomes))
	if err := lmsr.ValidateParams(quantities, b); err != nil {
		return domain.MarketView{}, fmt.Errorf("%w: %w", err, domain.ErrValidation)
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()

	for _, e := range mg.markets {
		if e.m.GameID == gameID && e.m.CategoryID == categoryID && e.m.Live() {
			return domain.MarketView{}, fmt.Errorf("market: live market %s exists for %s/%s: %w",
				e.m.ID, gameID, categoryID, domain.ErrAlreadyExists)
		}
	}

	key := pairKey(gameID, categoryID)
	n := mg.seq[key] + 1
	if mg.store != nil {
		// The store tracks the high-water mark across restarts.
		stored, err := mg.store.NextSeq(ctx, gameID, categoryID)
		if err != nil {
			return domain.MarketView{}, fmt.Errorf("market: next sequence: %w", err)
		}
		if stored > n {
			n = stored
		}
	}
	mg.seq[key] = n

	now := time.Now().UTC()
	m := domain.Market{
		ID:         domain.MarketID(gameID, categoryID, n),
		GameID:     gameID,
		CategoryID: categoryID,
		Status:     domain.MarketStatusPending,
		Outcomes:   append([]string(nil), outcomes...),
		Quantities: quantities,
		B:          b,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	mg.markets[m.ID] = &entry{m: m}

	if err := mg.persist(ctx, m); err != nil {
		return domain.MarketView{}, err
	}
	mg.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.Int("outcomes", len(outcomes)),
		slog.Float64("b", b),
	)
	return view(m), nil
}

// Open transitions a market PENDING -> OPEN. Opening is also rejected while
// another market for the same (game, category) pair is OPEN.
func (mg *Manager) Open(ctx context.Context, id string) (domain.MarketView, error) {
	mg.mu.RLock()
	e, ok := mg.markets[id]
	if ok {
		for _, other := range mg.markets {
			if other != e && other.m.GameID == e.m.GameID &&
				other.m.CategoryID == e.m.CategoryID && other.m.Status == domain.MarketStatusOpen {
				mg.mu.RUnlock()
				return domain.MarketView{}, fmt.Errorf("market: %s already open for %s/%s: %w",
					other.m.ID, e.m.GameID, e.m.CategoryID, domain.ErrInvalidTransition)
			}
		}
	}
	mg.mu.RUnlock()
	return mg.transition(ctx, id, domain.MarketStatusPending, domain.MarketStatusOpen, nil)
}

// Close transitions a market OPEN -> CLOSED, blocking new bets and orders.
func (mg *Manager) Close(ctx context.Context, id string) (domain.MarketView, error) {
	return mg.transition(ctx, id, domain.MarketStatusOpen, domain.MarketStatusClosed, nil)
}

// Resolve transitions a market CLOSED -> RESOLVED with the winning outcome.
// Resolution is irreversible; quantities and winner are immutable afterwards.
func (mg *Manager) Resolve(ctx context.Context, id, outcome string) (domain.MarketView, error) {
	return mg.transition(ctx, id, domain.MarketStatusClosed, domain.MarketStatusResolved, func(m *domain.Market) error {
		if m.OutcomeIndex(outcome) < 0 {
			return fmt.Errorf("market: %q not in outcome set of %s: %w", outcome, m.ID, domain.ErrInvalidOutcome)
		}
		w := outcome
		m.Winner = &w
		return nil
	})
}

// transition applies one state-machine edge under the market's mutex.
func (mg *Manager) transition(ctx context.Context, id string, from, to domain.MarketStatus, mutate func(*domain.Market) error) (domain.MarketView, error) {
	e, err := mg.lookup(id)
	if err != nil {
		return domain.MarketView{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m.Status != from {
		return domain.MarketView{}, fmt.Errorf("market: %s is %s, want %s: %w",
			id, e.m.Status, from, domain.ErrInvalidTransition)
	}
	next := e.m
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return domain.MarketView{}, err
		}
	}
	next.Status = to
	next.UpdatedAt = time.Now().UTC()

	if err := mg.persist(ctx, next); err != nil {
		return domain.MarketView{}, err
	}
	e.m = next

	mg.logger.InfoContext(ctx, "market status changed",
		slog.String("market_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return view(next), nil
}

// BetQuote is the result of applying one LMSR bet under the market lock.
type BetQuote struct {
	MarketID  string
	Outcome   string
	Shares    float64
	CostPaid  float64
	NewPrices []float64
}

// ApplyBet atomically prices and applies one bet: it solves the LMSR share
// quantity for netAmount on the given outcome, advances the quantity vector,
// and returns the fill. The whole read-modify-write runs under the market's
// mutex, so two concurrent bets on the same market serialize.
func (mg *Manager) ApplyBet(ctx context.Context, id, outcome string, netAmount float64) (BetQuote, error) {
	e, err := mg.lookup(id)
	if err != nil {
		return BetQuote{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m.Status != domain.MarketStatusOpen {
		return BetQuote{}, fmt.Errorf("market: %s is %s: %w", id, e.m.Status, domain.ErrMarketNotOpen)
	}
	idx := e.m.OutcomeIndex(outcome)
	if idx < 0 {
		return BetQuote{}, fmt.Errorf("market: %q not in outcome set of %s: %w", outcome, id, domain.ErrInvalidOutcome)
	}

	shares, err := lmsr.SharesForCost(e.m.Quantities, e.m.B, idx, netAmount)
	if err != nil {
		return BetQuote{}, fmt.Errorf("%w: %w", err, domain.ErrValidation)
	}

	next := e.m
	next.Quantities = lmsr.NewQuantities(e.m.Quantities, idx, shares)
	next.UpdatedAt = time.Now().UTC()

	if err := mg.persist(ctx, next); err != nil {
		return BetQuote{}, err
	}
	e.m = next

	return BetQuote{
		MarketID:  id,
		Outcome:   outcome,
		Shares:    shares,
		CostPaid:  netAmount,
		NewPrices: lmsr.Prices(next.Quantities, next.B),
	}, nil
}

// UpdateQuantities replaces the quantity vector wholesale. Allowed only while
// the market is OPEN; the vector length must match the outcome set.
func (mg *Manager) UpdateQuantities(ctx context.Context, id string, quantities []float64) (domain.MarketView, error) {
	e, err := mg.lookup(id)
	if err != nil {
		return domain.MarketView{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m.Status != domain.MarketStatusOpen {
		return domain.MarketView{}, fmt.Errorf("market: %s is %s: %w", id, e.m.Status, domain.ErrMarketNotOpen)
	}
	if len(quantities) != len(e.m.Outcomes) {
		return domain.MarketView{}, fmt.Errorf("market: quantity vector length %d != %d outcomes: %w",
			len(quantities), len(e.m.Outcomes), domain.ErrValidation)
	}
	if err := lmsr.ValidateParams(quantities, e.m.B); err != nil {
		return domain.MarketView{}, fmt.Errorf("%w: %w", err, domain.ErrValidation)
	}

	next := e.m
	next.Quantities = append([]float64(nil), quantities...)
	next.UpdatedAt = time.Now().UTC()

	if err := mg.persist(ctx, next); err != nil {
		return domain.MarketView{}, err
	}
	e.m = next
	return view(next), nil
}

// Get returns one market with derived prices.
func (mg *Manager) Get(id string) (domain.MarketView, error) {
	e, err := mg.lookup(id)
	if err != nil {
		return domain.MarketView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return view(e.m), nil
}

// List returns all live (unresolved) markets.
func (mg *Manager) List() []domain.MarketView {
	mg.mu.RLock()
	entries := make([]*entry, 0, len(mg.markets))
	for _, e := range mg.markets {
		entries = append(entries, e)
	}
	mg.mu.RUnlock()

	out := make([]domain.MarketView, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.m.Live() {
			out = append(out, view(e.m))
		}
		e.mu.Unlock()
	}
	return out
}

// HasOpenMarkets reports whether any market is currently OPEN. Consulted by
// the LP withdrawal-lock policy.
func (mg *Manager) HasOpenMarkets() bool {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	for _, e := range mg.markets {
		if e.m.Status == domain.MarketStatusOpen {
			return true
		}
	}
	return false
}

func (mg *Manager) lookup(id string) (*entry, error) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	e, ok := mg.markets[id]
	if !ok {
		return nil, fmt.Errorf("market: %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func (mg *Manager) persist(ctx context.Context, m domain.Market) error {
	if mg.store == nil {
		return nil
	}
	if err := mg.store.Upsert(ctx, m); err != nil {
		return fmt.Errorf("market: persist %s: %w", m.ID, err)
	}
	return nil
}

func view(m domain.Market) domain.MarketView {
	// Copy the mutable slices so callers never alias manager state.
	m.Outcomes = append([]string(nil), m.Outcomes...)
	m.Quantities = append([]float64(nil), m.Quantities...)
	return domain.MarketView{
		Market: m,
		Prices: lmsr.Prices(m.Quantities, m.B),
	}
}
