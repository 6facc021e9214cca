package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/market"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/settlement"
)

// BetRequest is an inbound LMSR bet against the house market maker.
type BetRequest struct {
	Address  string
	MarketID string
	Outcome  string
	Amount   float64
}

// BetResult reports the bet outcome. A rejected bet carries a reason; an
// accepted bet carries shares, new prices, and the recorded position. A
// non-nil EnrichmentErr means the trade stands but the settlement session
// update failed (partial success).
type BetResult struct {
	Accepted      bool
	Reason        string
	Shares        float64
	NewPrices     []float64
	Position      domain.Position
	EnrichmentErr error
}

// BetService runs the bet flow: validate -> open settlement session -> apply
// LMSR pricing under the market lock -> record position -> enrich session ->
// broadcast.
type BetService struct {
	markets     *market.Manager
	tracker     *position.Tracker
	coordinator *settlement.Coordinator
	prices      domain.PriceCache
	bus         domain.SignalBus
	audit       domain.AuditStore
	feeRate     float64
	logger      *slog.Logger
}

// NewBetService creates a BetService. feeRate is the fraction of each bet
// taken as operator fee before pricing (e.g. 0.02).
func NewBetService(
	markets *market.Manager,
	tracker *position.Tracker,
	coordinator *settlement.Coordinator,
	prices domain.PriceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	feeRate float64,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets:     markets,
		tracker:     tracker,
		coordinator: coordinator,
		prices:      prices,
		bus:         bus,
		audit:       audit,
		feeRate:     feeRate,
		logger:      logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBet executes one bet end to end.
func (s *BetService) PlaceBet(ctx context.Context, req BetRequest) (BetResult, error) {
	if req.Address == "" || req.MarketID == "" || req.Outcome == "" {
		return BetResult{Reason: "address, market, and outcome required"},
			fmt.Errorf("bet_service: missing fields: %w", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return BetResult{Reason: "amount must be positive"},
			fmt.Errorf("bet_service: amount %g: %w", req.Amount, domain.ErrValidation)
	}

	// The trader's stake moves into a settlement session before the market
	// is touched; a rejection after this point must hand it back.
	session, err := s.coordinator.OpenSession(ctx, req.Address, req.Amount,
		fmt.Sprintf(`{"kind":"bet","market_id":%q,"outcome":%q}`, req.MarketID, req.Outcome))
	if err != nil {
		return BetResult{Reason: "settlement service unavailable"},
			fmt.Errorf("bet_service: open session: %w", err)
	}

	fee := req.Amount * s.feeRate
	quote, err := s.markets.ApplyBet(ctx, req.MarketID, req.Outcome, req.Amount-fee)
	if err != nil {
		// Best-effort compensation: close the orphaned session, returning
		// the stake. Failures are logged inside, never propagated.
		s.coordinator.AbortSession(ctx, session, req.Address, req.Amount)
		return BetResult{Reason: rejectReason(err)}, fmt.Errorf("bet_service: apply bet: %w", err)
	}

	pos, err := s.tracker.Add(ctx, domain.Position{
		Address:           req.Address,
		MarketID:          req.MarketID,
		Outcome:           req.Outcome,
		Shares:            quote.Shares,
		CostPaid:          quote.CostPaid,
		Fee:               fee,
		AppSessionID:      session.AppSessionID,
		AppSessionVersion: session.Version,
		SessionStatus:     domain.SessionStatusOpen,
		Mode:              domain.PositionModeLMSR,
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		s.coordinator.AbortSession(ctx, session, req.Address, req.Amount)
		return BetResult{Reason: "position tracking failed"}, fmt.Errorf("bet_service: record position: %w", err)
	}

	result := BetResult{
		Accepted:  true,
		Shares:    quote.Shares,
		NewPrices: quote.NewPrices,
		Position:  pos,
	}

	// Secondary enrichment: the trade already stands, a ledger failure here
	// only marks this step failed.
	enrich := s.coordinator.EnrichSession(ctx, pos)
	if enrich.Err != nil {
		result.EnrichmentErr = enrich.Err
	} else if updated, err := s.tracker.AdvanceSession(ctx, pos.ID, enrich.Version, "", domain.SessionStatusOpen); err == nil {
		result.Position = updated
	}

	s.afterBet(ctx, req, result)
	return result, nil
}

// afterBet updates the price cache and broadcasts in the order the state
// mutations were applied: odds first, then the position, then the result.
func (s *BetService) afterBet(ctx context.Context, req BetRequest, result BetResult) {
	mv, err := s.markets.Get(req.MarketID)
	if err == nil && s.prices != nil {
		if err := s.prices.SetPrices(ctx, mv.ID, mv.Outcomes, mv.Prices, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "price cache update failed",
				slog.String("market_id", mv.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	publish(ctx, s.bus, s.logger, domain.ChannelOdds, map[string]any{
		"event":     domain.EventOddsUpdate,
		"market_id": req.MarketID,
		"prices":    result.NewPrices,
	})
	publish(ctx, s.bus, s.logger, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionAdded,
		"position_id": result.Position.ID,
		"market_id":   req.MarketID,
		"address":     req.Address,
		"outcome":     req.Outcome,
		"shares":      result.Shares,
	})
	publish(ctx, s.bus, s.logger, domain.ChannelBets, map[string]any{
		"event":     domain.EventBetResult,
		"market_id": req.MarketID,
		"address":   req.Address,
		"accepted":  true,
		"shares":    result.Shares,
	})
	auditLog(ctx, s.audit, s.logger, "bet_placed", map[string]any{
		"market_id": req.MarketID,
		"address":   req.Address,
		"outcome":   req.Outcome,
		"amount":    req.Amount,
		"shares":    result.Shares,
	})
}

// rejectReason maps internal errors to the reason string returned to the
// caller.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMarketNotOpen):
		return "market not open"
	case errors.Is(err, domain.ErrInvalidOutcome):
		return "unknown outcome"
	case errors.Is(err, domain.ErrNotFound):
		return "market not found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid bet parameters"
	default:
		return "bet rejected"
	}
}
