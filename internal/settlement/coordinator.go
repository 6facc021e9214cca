// Package settlement orchestrates the external off-chain ledger around the
// core trade lifecycle: a settlement app session is opened when a bet or
// order is accepted, enriched as local state commits, closed on rejection,
// and paid out on market resolution. Ledger calls are the only network
// suspension points in the hub; every call runs under a bounded timeout and
// failures after local commit are partial-success, never fatal.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openodds/markethub/internal/domain"
)

// Config holds coordinator parameters.
type Config struct {
	// OperatorAddress participates in every app session as the custodian
	// counterparty.
	OperatorAddress string
	// Asset is the settlement asset symbol, e.g. "usdc".
	Asset string
	// CallTimeout bounds each individual ledger RPC.
	CallTimeout time.Duration
}

// Coordinator drives the external ledger client. It holds no market state of
// its own; callers pass in the positions and reports to settle.
type Coordinator struct {
	ledger domain.LedgerClient
	cfg    Config
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(ledger domain.LedgerClient, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Coordinator{
		ledger: ledger,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// PoolValue reports the operator's ledger balance in dollars. This is the
// externally reported pool value the LP manager prices shares against.
func (c *Coordinator) PoolValue(ctx context.Context) (float64, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	units, err := c.ledger.GetBalance(cctx, c.cfg.Asset)
	if err != nil {
		return 0, fmt.Errorf("settlement: get balance: %w: %w", err, domain.ErrLedgerUnavailable)
	}
	return domain.FromMicro(units), nil
}

// OpenSession creates the settlement channel for one accepted trade: the
// trader's stake moves into a session between the trader and the operator.
// Amounts convert to integer micro-units at this boundary.
func (c *Coordinator) OpenSession(ctx context.Context, address string, amount float64, sessionData string) (domain.AppSession, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	allocations := []domain.LedgerAllocation{
		{Participant: address, Asset: c.cfg.Asset, Amount: domain.ToMicro(amount)},
		{Participant: c.cfg.OperatorAddress, Asset: c.cfg.Asset, Amount: 0},
	}
	session, err := c.ledger.CreateAppSession(cctx, []string{address, c.cfg.OperatorAddress}, allocations, sessionData)
	if err != nil {
		return domain.AppSession{}, fmt.Errorf("settlement: create session for %s: %w: %w", address, err, domain.ErrLedgerUnavailable)
	}
	return session, nil
}

// EnrichmentResult reports the secondary session-update step that follows a
// locally committed trade. Committed is about the trade, which already
// stands; Err only marks the enrichment itself as failed.
type EnrichmentResult struct {
	Committed bool
	Version   uint64
	Err       error
}

// EnrichSession submits the post-trade app state (shares bought, prices
// moved) to the session. The trade has already committed locally, so a
// ledger failure here is recorded and reported as partial success.
func (c *Coordinator) EnrichSession(ctx context.Context, pos domain.Position) EnrichmentResult {
	sessionData, _ := json.Marshal(map[string]any{
		"market_id": pos.MarketID,
		"outcome":   pos.Outcome,
		"shares":    pos.Shares,
		"cost":      domain.ToMicro(pos.CostPaid),
		"fee":       domain.ToMicro(pos.Fee),
		"mode":      string(pos.Mode),
	})
	allocations := []domain.LedgerAllocation{
		{Participant: pos.Address, Asset: c.cfg.Asset, Amount: 0},
		{Participant: c.cfg.OperatorAddress, Asset: c.cfg.Asset, Amount: domain.ToMicro(pos.CostPaid)},
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	version, err := c.ledger.SubmitAppState(cctx, pos.AppSessionID, "operate", pos.AppSessionVersion+1, allocations, string(sessionData))
	if err != nil {
		c.logger.WarnContext(ctx, "session enrichment failed",
			slog.String("app_session_id", pos.AppSessionID),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return EnrichmentResult{Committed: true, Err: fmt.Errorf("settlement: enrich session %s: %w", pos.AppSessionID, err)}
	}
	return EnrichmentResult{Committed: true, Version: version}
}

// AbortSession closes an orphaned session after a local rejection, returning
// the trader's stake. Best effort: a failure to close is logged, not
// retried, and never surfaces to the rejection response.
func (c *Coordinator) AbortSession(ctx context.Context, session domain.AppSession, address string, amount float64) {
	allocations := []domain.LedgerAllocation{
		{Participant: address, Asset: c.cfg.Asset, Amount: domain.ToMicro(amount)},
		{Participant: c.cfg.OperatorAddress, Asset: c.cfg.Asset, Amount: 0},
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.ledger.CloseAppSession(cctx, session.AppSessionID, allocations, `{"reason":"rejected"}`); err != nil {
		c.logger.WarnContext(ctx, "abort session close failed",
			slog.String("app_session_id", session.AppSessionID),
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
	}
}

// PayoutReport summarizes settling one resolved market against the ledger.
type PayoutReport struct {
	Settled  int
	Failed   int
	FirstErr error
}

// SettleResolution pays out a resolution report: each winner's session closes
// with their payout allocated to them (one unit per share), each loser's
// session closes with everything allocated to the operator. Ledger failures
// on individual positions are counted and the first error kept; the rest of
// the market still settles.
func (c *Coordinator) SettleResolution(ctx context.Context, report domain.ResolutionReport) PayoutReport {
	var out PayoutReport
	for _, oc := range report.Outcomes {
		if err := c.settlePosition(ctx, report.Winner, oc); err != nil {
			out.Failed++
			if out.FirstErr == nil {
				out.FirstErr = err
			}
			c.logger.ErrorContext(ctx, "position settlement failed",
				slog.String("market_id", report.MarketID),
				slog.String("position_id", oc.Position.ID),
				slog.Bool("won", oc.Won),
				slog.String("error", err.Error()),
			)
			continue
		}
		out.Settled++
	}
	c.logger.InfoContext(ctx, "resolution settled",
		slog.String("market_id", report.MarketID),
		slog.String("winner", report.Winner),
		slog.Int("winners", report.Winners),
		slog.Int("losers", report.Losers),
		slog.Float64("total_payout", report.TotalPayout),
		slog.Int("failed", out.Failed),
	)
	return out
}

func (c *Coordinator) settlePosition(ctx context.Context, winner string, oc domain.ResolutionOutcome) error {
	pos := oc.Position
	sessionData, _ := json.Marshal(map[string]any{
		"market_id": pos.MarketID,
		"winner":    winner,
		"won":       oc.Won,
		"payout":    domain.ToMicro(oc.Payout),
	})

	userAmount := int64(0)
	operatorAmount := int64(0)
	if oc.Won {
		userAmount = domain.ToMicro(oc.Payout)
	} else {
		operatorAmount = domain.ToMicro(pos.CostPaid)
	}
	allocations := []domain.LedgerAllocation{
		{Participant: pos.Address, Asset: c.cfg.Asset, Amount: userAmount},
		{Participant: c.cfg.OperatorAddress, Asset: c.cfg.Asset, Amount: operatorAmount},
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if pos.AppSessionID != "" {
		if err := c.ledger.CloseAppSession(cctx, pos.AppSessionID, allocations, string(sessionData)); err != nil {
			return fmt.Errorf("settlement: close session %s: %w", pos.AppSessionID, err)
		}
		return nil
	}
	// Positions without a session (enrichment never attached one) are paid
	// by direct transfer.
	if oc.Won {
		if err := c.ledger.Transfer(cctx, pos.Address, c.cfg.Asset, userAmount); err != nil {
			return fmt.Errorf("settlement: transfer payout to %s: %w", pos.Address, err)
		}
	}
	return nil
}

// WithdrawTransfer moves an LP withdrawal amount from the operator balance to
// the provider.
func (c *Coordinator) WithdrawTransfer(ctx context.Context, address string, amount float64) error {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.ledger.Transfer(cctx, address, c.cfg.Asset, domain.ToMicro(amount)); err != nil {
		return fmt.Errorf("settlement: withdraw transfer to %s: %w: %w", address, err, domain.ErrLedgerUnavailable)
	}
	return nil
}

// Fund sends amount to each destination in order. It stops counting on
// nothing: every destination is attempted, and the result is the number
// completed plus the first error encountered.
func (c *Coordinator) Fund(ctx context.Context, destinations []string, amount float64) (int, error) {
	completed := 0
	var firstErr error
	for _, dest := range destinations {
		cctx, cancel := c.callCtx(ctx)
		err := c.ledger.Transfer(cctx, dest, c.cfg.Asset, domain.ToMicro(amount))
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("settlement: fund %s: %w", dest, err)
			}
			continue
		}
		completed++
	}
	return completed, firstErr
}
