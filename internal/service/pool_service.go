package service

import (
	"context"
	"log/slog"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/lp"
	"github.com/openodds/markethub/internal/market"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/settlement"
)

// PoolService exposes liquidity-provider deposits and withdrawals. Pool value
// is always the operator's live ledger balance, never a locally tracked sum.
type PoolService struct {
	pool        *lp.Manager
	markets     *market.Manager
	tracker     *position.Tracker
	coordinator *settlement.Coordinator
	bus         domain.SignalBus
	audit       domain.AuditStore
	logger      *slog.Logger
}

func NewPoolService(
	pool *lp.Manager,
	markets *market.Manager,
	tracker *position.Tracker,
	coordinator *settlement.Coordinator,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		pool:        pool,
		markets:     markets,
		tracker:     tracker,
		coordinator: coordinator,
		bus:         bus,
		audit:       audit,
		logger:      logger.With(slog.String("component", "pool_service")),
	}
}

// Deposit credits an LP with pool shares priced at the pool value before the
// deposit lands. The caller funds the operator wallet out of band; the ledger
// balance read here must precede the amount arriving.
func (s *PoolService) Deposit(ctx context.Context, address string, amount float64) (domain.DepositResult, error) {
	poolValue, err := s.coordinator.PoolValue(ctx)
	if err != nil {
		return domain.DepositResult{}, err
	}
	result, err := s.pool.RecordDeposit(ctx, address, amount, poolValue)
	if err != nil {
		return domain.DepositResult{}, err
	}
	s.publishPool(ctx, "deposit", address, amount, result.SharePrice)
	auditLog(ctx, s.audit, s.logger, "lp_deposit", map[string]any{
		"address":     address,
		"amount":      amount,
		"shares":      result.Shares,
		"share_price": result.SharePrice,
	})
	return result, nil
}

// Withdraw burns pool shares and pays the LP from the operator wallet.
// Withdrawals are refused while any market is open or any position is
// unsettled, so the pool value the share price is computed from is final.
func (s *PoolService) Withdraw(ctx context.Context, address string, shares float64) (domain.WithdrawalResult, error) {
	check := lp.CanWithdraw(s.markets.HasOpenMarkets(), s.tracker.HasUnsettled())
	if !check.Allowed {
		return domain.WithdrawalResult{}, &WithdrawalLockedError{Reason: check.Reason}
	}

	poolValue, err := s.coordinator.PoolValue(ctx)
	if err != nil {
		return domain.WithdrawalResult{}, err
	}
	result, err := s.pool.RecordWithdrawal(ctx, address, shares, poolValue)
	if err != nil {
		return domain.WithdrawalResult{}, err
	}

	if err := s.coordinator.WithdrawTransfer(ctx, address, result.Amount); err != nil {
		// The share burn already happened; put the shares back rather
		// than leave the LP paid in neither shares nor funds.
		if _, rerr := s.pool.RecordDeposit(ctx, address, result.Amount, poolValue-result.Amount); rerr != nil {
			s.logger.ErrorContext(ctx, "withdrawal revert failed",
				slog.String("address", address),
				slog.Float64("amount", result.Amount),
				slog.String("error", rerr.Error()),
			)
		}
		auditLog(ctx, s.audit, s.logger, "withdrawal_reverted", map[string]any{
			"address": address,
			"amount":  result.Amount,
			"error":   err.Error(),
		})
		return domain.WithdrawalResult{}, err
	}

	s.publishPool(ctx, "withdrawal", address, result.Amount, result.SharePrice)
	auditLog(ctx, s.audit, s.logger, "lp_withdrawal", map[string]any{
		"address":     address,
		"shares":      shares,
		"amount":      result.Amount,
		"share_price": result.SharePrice,
	})
	return result, nil
}

// Stats returns the pool snapshot priced at the live ledger balance.
func (s *PoolService) Stats(ctx context.Context) (domain.PoolStats, error) {
	poolValue, err := s.coordinator.PoolValue(ctx)
	if err != nil {
		return domain.PoolStats{}, err
	}
	return s.pool.Stats(poolValue), nil
}

// Share returns one LP's holding.
func (s *PoolService) Share(address string) (domain.LPShare, error) {
	return s.pool.Share(address)
}

// Events returns the pool's append-only deposit/withdrawal log.
func (s *PoolService) Events() []domain.LPEvent {
	return s.pool.Events()
}

// WithdrawalLockedError carries the human-readable reason a withdrawal was
// refused. Unwraps to domain.ErrWithdrawalsLocked.
type WithdrawalLockedError struct {
	Reason string
}

func (e *WithdrawalLockedError) Error() string {
	return "pool_service: withdrawals locked: " + e.Reason
}

func (e *WithdrawalLockedError) Unwrap() error { return domain.ErrWithdrawalsLocked }

func (s *PoolService) publishPool(ctx context.Context, kind, address string, amount, sharePrice float64) {
	publish(ctx, s.bus, s.logger, domain.ChannelPool, map[string]any{
		"event":       domain.EventPoolUpdate,
		"kind":        kind,
		"address":     address,
		"amount":      amount,
		"share_price": sharePrice,
	})
}
