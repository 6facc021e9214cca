package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/openodds/markethub/internal/domain"
)

// MarketSource is the slice of the market manager the engine needs: status
// and outcome-set validation before touching a book.
type MarketSource interface {
	Get(id string) (domain.MarketView, error)
}

// Engine routes orders to per-market books, creating books lazily. Books for
// different markets operate independently; only same-market operations
// serialize on the book mutex.
type Engine struct {
	mu      sync.RWMutex
	books   map[string]*Book
	markets MarketSource
	cfg     Config
}

// NewEngine creates an Engine over the given market source.
func NewEngine(markets MarketSource, cfg Config) *Engine {
	return &Engine{
		books:   make(map[string]*Book),
		markets: markets,
		cfg:     cfg,
	}
}

// PlaceOrder validates the target market is OPEN and submits the order to its
// book.
func (e *Engine) PlaceOrder(marketID, userAddress, outcome string, mcps, amount float64) (PlaceResult, error) {
	mv, err := e.markets.Get(marketID)
	if err != nil {
		return PlaceResult{}, err
	}
	if mv.Status != domain.MarketStatusOpen {
		return PlaceResult{}, fmt.Errorf("orderbook: market %s is %s: %w", marketID, mv.Status, domain.ErrMarketNotOpen)
	}
	return e.book(mv).Place(mv.GameID, userAddress, outcome, mcps, amount)
}

// CancelOrder cancels an order in whichever book holds it.
func (e *Engine) CancelOrder(orderID string) (domain.Order, error) {
	for _, b := range e.allBooks() {
		o, err := b.Cancel(orderID)
		if err == nil {
			return o, nil
		}
		if !isNotFound(err) {
			return domain.Order{}, err
		}
	}
	return domain.Order{}, fmt.Errorf("orderbook: order %s: %w", orderID, domain.ErrNotFound)
}

// GetOrder looks an order up across all books.
func (e *Engine) GetOrder(orderID string) (domain.Order, error) {
	for _, b := range e.allBooks() {
		if o, err := b.Get(orderID); err == nil {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("orderbook: order %s: %w", orderID, domain.ErrNotFound)
}

// Depth returns the aggregated book for one market.
func (e *Engine) Depth(marketID string) (domain.Depth, error) {
	mv, err := e.markets.Get(marketID)
	if err != nil {
		return domain.Depth{}, err
	}
	return e.book(mv).Depth(), nil
}

// OpenOrders returns the open orders resting in one market's book.
func (e *Engine) OpenOrders(marketID string) ([]domain.Order, error) {
	mv, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	return e.book(mv).OpenOrders(), nil
}

// CancelAll cancels every open order in a market's book, returning the
// cancelled orders. Used when a market closes.
func (e *Engine) CancelAll(marketID string) ([]domain.Order, error) {
	mv, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	b := e.book(mv)

	var cancelled []domain.Order
	for _, o := range b.OpenOrders() {
		c, err := b.Cancel(o.OrderID)
		if err != nil {
			continue
		}
		cancelled = append(cancelled, c)
	}
	return cancelled, nil
}

// Restore seeds a market's book with resting orders recovered from storage.
// Orders are rested oldest-first so price-time priority survives a restart.
func (e *Engine) Restore(marketID string, orders []domain.Order) error {
	mv, err := e.markets.Get(marketID)
	if err != nil {
		return err
	}
	b := e.book(mv)

	sorted := make([]domain.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	for _, o := range sorted {
		if err := b.Restore(o); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) book(mv domain.MarketView) *Book {
	e.mu.RLock()
	b, ok := e.books[mv.ID]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[mv.ID]; ok {
		return b
	}
	b = NewBook(mv.ID, mv.Outcomes, e.cfg)
	e.books[mv.ID] = b
	return b
}

func (e *Engine) allBooks() []*Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Book, 0, len(e.books))
	for _, b := range e.books {
		out = append(out, b)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
