// Package orderbook implements per-market price-time-priority matching of
// peer-to-peer limit orders on complementary outcomes.
//
// Every order is a buy of one outcome at a limit price (MCPS) in (0,1). An
// incoming order on outcome A at price p is matchable against a resting order
// on any other outcome B at price q whenever p + q <= 1, so neither side ever
// pays above its limit. A pair matched strictly below 1 is underfunded
// against the 1-unit redemption; the pool covers that gap at resolution.
// Matching walks the counter outcomes' levels cheapest-price-first,
// earliest-timestamp within a level, and every fill executes at the resting
// order's price.
package orderbook

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openodds/markethub/internal/domain"
)

// sharesEpsilon is the float tolerance below which remaining size counts as
// fully filled.
const sharesEpsilon = 1e-9

// Config holds matching policy knobs.
type Config struct {
	// RejectWashTrades skips resting orders owned by the incoming order's
	// user instead of crossing them. Off by default: self-matching is
	// permitted unless the operator enables the guard.
	RejectWashTrades bool
}

// level is one price level of one outcome: a FIFO queue of resting orders.
type level struct {
	price  float64
	orders []*domain.Order
}

func (l *level) shares() float64 {
	total := 0.0
	for _, o := range l.orders {
		total += o.UnfilledShares
	}
	return total
}

// Book is the order book for a single market. All mutation happens under mu,
// which serializes placements, fills, and cancels for the market.
type Book struct {
	mu       sync.Mutex
	marketID string
	cfg      Config

	// levels maps outcome -> price levels sorted ascending (cheapest first,
	// which is best for the counterparty).
	levels map[string][]*level
	orders map[string]*domain.Order
}

// NewBook creates an empty book for the given market and outcome set.
func NewBook(marketID string, outcomes []string, cfg Config) *Book {
	levels := make(map[string][]*level, len(outcomes))
	for _, o := range outcomes {
		levels[o] = nil
	}
	return &Book{
		marketID: marketID,
		cfg:      cfg,
		levels:   levels,
		orders:   make(map[string]*domain.Order),
	}
}

// PlaceResult is the outcome of submitting one order.
type PlaceResult struct {
	Order domain.Order
	Fills []domain.Fill
}

// Place validates the incoming order, matches it against compatible resting
// orders, and rests any remainder. MCPS must lie strictly in (0,1) and amount
// must be positive; the outcome must belong to the book's outcome set.
func (b *Book) Place(gameID, userAddress, outcome string, mcps, amount float64) (PlaceResult, error) {
	if mcps <= 0 || mcps >= 1 {
		return PlaceResult{}, fmt.Errorf("orderbook: mcps %g outside (0,1): %w", mcps, domain.ErrValidation)
	}
	if amount <= 0 {
		return PlaceResult{}, fmt.Errorf("orderbook: amount %g must be > 0: %w", amount, domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.levels[outcome]; !ok {
		return PlaceResult{}, fmt.Errorf("orderbook: outcome %q not in market %s: %w", outcome, b.marketID, domain.ErrInvalidOutcome)
	}

	now := time.Now().UTC()
	maxShares := amount / mcps
	incoming := &domain.Order{
		OrderID:        uuid.New().String(),
		MarketID:       b.marketID,
		GameID:         gameID,
		UserAddress:    userAddress,
		Outcome:        outcome,
		MCPS:           mcps,
		Amount:         amount,
		UnfilledAmount: amount,
		MaxShares:      maxShares,
		UnfilledShares: maxShares,
		Status:         domain.OrderStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.orders[incoming.OrderID] = incoming

	fills := b.uncross(incoming, now)
	if incoming.UnfilledShares > sharesEpsilon {
		b.rest(incoming)
	}

	return PlaceResult{Order: *incoming, Fills: fills}, nil
}

// uncross matches the incoming order against compatible resting orders until
// it is filled or no compatible counter-order remains.
func (b *Book) uncross(incoming *domain.Order, now time.Time) []domain.Fill {
	var fills []domain.Fill
	for incoming.UnfilledShares > sharesEpsilon {
		maker := b.bestCounter(incoming)
		if maker == nil {
			break
		}

		shares := incoming.UnfilledShares
		if maker.UnfilledShares < shares {
			shares = maker.UnfilledShares
		}

		applyFill(incoming, shares)
		applyFill(maker, shares)
		if maker.UnfilledShares <= sharesEpsilon {
			b.remove(maker)
		}

		fills = append(fills, domain.Fill{
			MarketID:       b.marketID,
			TakerOrderID:   incoming.OrderID,
			MakerOrderID:   maker.OrderID,
			TakerAddress:   incoming.UserAddress,
			MakerAddress:   maker.UserAddress,
			TakerOutcome:   incoming.Outcome,
			MakerOutcome:   maker.Outcome,
			Shares:         shares,
			EffectivePrice: maker.MCPS,
			Timestamp:      now,
		})
	}
	return fills
}

// bestCounter returns the matchable resting order with the lowest price
// across all counter outcomes, breaking price ties by earliest placement.
// Compatibility: counter price <= 1 - incoming price.
func (b *Book) bestCounter(incoming *domain.Order) *domain.Order {
	limit := 1 - incoming.MCPS
	var best *domain.Order
	for outcome, levels := range b.levels {
		if outcome == incoming.Outcome {
			continue
		}
		candidate := bestEligible(levels, limit, incoming.UserAddress, b.cfg.RejectWashTrades)
		if candidate == nil {
			continue
		}
		if best == nil || candidate.MCPS < best.MCPS ||
			(candidate.MCPS == best.MCPS && candidate.CreatedAt.Before(best.CreatedAt)) {
			best = candidate
		}
	}
	return best
}

// bestEligible returns the head of the cheapest level at or below limit that
// holds an eligible order. Levels are sorted ascending, so the scan stops at
// the first level past the limit.
func bestEligible(levels []*level, limit float64, taker string, rejectWash bool) *domain.Order {
	for _, lvl := range levels {
		if lvl.price > limit+sharesEpsilon {
			return nil
		}
		for _, o := range lvl.orders {
			if rejectWash && o.UserAddress == taker {
				continue
			}
			return o
		}
	}
	return nil
}

// applyFill moves shares from unfilled to filled and recomputes the derived
// amount split and status. The invariant filled + unfilled == max holds by
// construction.
func applyFill(o *domain.Order, shares float64) {
	o.FilledShares += shares
	o.UnfilledShares = o.MaxShares - o.FilledShares
	if o.UnfilledShares < sharesEpsilon {
		o.UnfilledShares = 0
	}
	o.FilledAmount = o.FilledShares * o.MCPS
	o.UnfilledAmount = o.Amount - o.FilledAmount
	if o.UnfilledAmount < 0 {
		o.UnfilledAmount = 0
	}
	switch {
	case o.UnfilledShares == 0:
		o.Status = domain.OrderStatusFilled
	case o.FilledShares > 0:
		o.Status = domain.OrderStatusPartiallyFilled
	default:
		o.Status = domain.OrderStatusOpen
	}
	o.UpdatedAt = time.Now().UTC()
}

// rest inserts the order into its outcome's level queue, creating the level
// if needed and keeping levels sorted ascending by price.
func (b *Book) rest(o *domain.Order) {
	levels := b.levels[o.Outcome]
	i := sort.Search(len(levels), func(i int) bool { return levels[i].price >= o.MCPS })
	if i < len(levels) && levels[i].price == o.MCPS {
		levels[i].orders = append(levels[i].orders, o)
		return
	}
	lvl := &level{price: o.MCPS, orders: []*domain.Order{o}}
	levels = append(levels, nil)
	copy(levels[i+1:], levels[i:])
	levels[i] = lvl
	b.levels[o.Outcome] = levels
}

// Restore rests a recovered order without matching, preserving its identity
// and fill state. The stored set was consistent when saved, so restored
// orders never cross each other.
func (b *Book) Restore(o domain.Order) error {
	if !o.Open() {
		return fmt.Errorf("orderbook: restore %s: order is %s: %w", o.OrderID, o.Status, domain.ErrAlreadyFilled)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.levels[o.Outcome]; !ok {
		return fmt.Errorf("orderbook: outcome %q not in market %s: %w", o.Outcome, b.marketID, domain.ErrInvalidOutcome)
	}
	if _, ok := b.orders[o.OrderID]; ok {
		return fmt.Errorf("orderbook: restore %s: %w", o.OrderID, domain.ErrAlreadyExists)
	}

	restored := o
	b.orders[restored.OrderID] = &restored
	b.rest(&restored)
	return nil
}

// remove takes the order out of its level queue, dropping the level when it
// empties.
func (b *Book) remove(o *domain.Order) {
	levels := b.levels[o.Outcome]
	for i, lvl := range levels {
		if lvl.price != o.MCPS {
			continue
		}
		for j, rest := range lvl.orders {
			if rest.OrderID == o.OrderID {
				lvl.orders = append(lvl.orders[:j], lvl.orders[j+1:]...)
				break
			}
		}
		if len(lvl.orders) == 0 {
			b.levels[o.Outcome] = append(levels[:i], levels[i+1:]...)
		}
		return
	}
}

// Cancel marks an OPEN or PARTIALLY_FILLED order CANCELLED and removes its
// remaining size from the book. Fully filled or already cancelled orders
// return ErrAlreadyFilled.
func (b *Book) Cancel(orderID string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("orderbook: order %s: %w", orderID, domain.ErrNotFound)
	}
	if !o.Open() {
		return domain.Order{}, fmt.Errorf("orderbook: order %s is %s: %w", orderID, o.Status, domain.ErrAlreadyFilled)
	}
	b.remove(o)
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return *o, nil
}

// Get returns one order by id.
func (b *Book) Get(orderID string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("orderbook: order %s: %w", orderID, domain.ErrNotFound)
	}
	return *o, nil
}

// Depth returns the aggregated open book per outcome, best-price-first.
func (b *Book) Depth() domain.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := domain.Depth{MarketID: b.marketID, Levels: make(map[string][]domain.DepthLevel, len(b.levels))}
	for outcome, levels := range b.levels {
		agg := make([]domain.DepthLevel, 0, len(levels))
		for _, lvl := range levels {
			agg = append(agg, domain.DepthLevel{
				Price:      lvl.price,
				Shares:     lvl.shares(),
				OrderCount: len(lvl.orders),
			})
		}
		d.Levels[outcome] = agg
	}
	return d
}

// OpenOrders returns every order still able to match, oldest first.
func (b *Book) OpenOrders() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Order
	for _, o := range b.orders {
		if o.Open() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
