package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/market"
)

// PriceQuote is one market's outcome-ordered price vector with provenance.
type PriceQuote struct {
	MarketID  string
	Outcomes  []string
	Prices    []float64
	UpdatedAt time.Time
	Source    string // "cache" or "live"
}

// PriceService serves market price reads. It prefers the shared cache so hot
// polling endpoints do not contend with the market manager, falling back to
// the live manager (and refilling the cache) on a miss.
type PriceService struct {
	markets *market.Manager
	cache   domain.PriceCache
	logger  *slog.Logger
}

// NewPriceService creates a PriceService. cache may be nil; every read is
// then served live.
func NewPriceService(markets *market.Manager, cache domain.PriceCache, logger *slog.Logger) *PriceService {
	return &PriceService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

// Prices returns the current price vector of one market. The manager is
// consulted first for the outcome set (and to reject unknown markets), then
// the cache is tried; a cached entry is used only when it covers every
// outcome.
func (s *PriceService) Prices(ctx context.Context, marketID string) (PriceQuote, error) {
	mv, err := s.markets.Get(marketID)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("price_service: %s: %w", marketID, err)
	}

	if s.cache != nil {
		if byOutcome, ts, err := s.cache.GetPrices(ctx, marketID); err == nil {
			if prices, ok := orderPrices(mv.Outcomes, byOutcome); ok {
				return PriceQuote{
					MarketID:  marketID,
					Outcomes:  mv.Outcomes,
					Prices:    prices,
					UpdatedAt: ts,
					Source:    "cache",
				}, nil
			}
		}
	}

	quote := PriceQuote{
		MarketID:  marketID,
		Outcomes:  mv.Outcomes,
		Prices:    mv.Prices,
		UpdatedAt: mv.UpdatedAt,
		Source:    "live",
	}
	if s.cache != nil {
		if err := s.cache.SetPrices(ctx, marketID, mv.Outcomes, mv.Prices, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "price cache refill failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return quote, nil
}

// orderPrices arranges a by-outcome price map into the market's outcome
// order. It reports false when any outcome is missing.
func orderPrices(outcomes []string, byOutcome map[string]float64) ([]float64, bool) {
	prices := make([]float64, len(outcomes))
	for i, outcome := range outcomes {
		p, ok := byOutcome[outcome]
		if !ok {
			return nil, false
		}
		prices[i] = p
	}
	return prices, true
}
