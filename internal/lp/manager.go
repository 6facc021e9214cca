// Package lp implements liquidity-provider share accounting for the operator
// pool. Shares are issued and redeemed against the externally reported pool
// value at the moment of the event, so every provider's stake stays
// proportional regardless of pool growth.
package lp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openodds/markethub/internal/domain"
)

// Manager is the process-wide LP ledger. One mutex guards the whole pool:
// deposits and withdrawals are rare compared to trading and the share-price
// computation must see a consistent total.
type Manager struct {
	mu          sync.Mutex
	shares      map[string]*domain.LPShare
	totalShares float64
	events      []domain.LPEvent
	store       domain.LPStore
	logger      *slog.Logger
}

// NewManager creates a Manager. store may be nil for in-memory operation.
func NewManager(store domain.LPStore, logger *slog.Logger) *Manager {
	return &Manager{
		shares: make(map[string]*domain.LPShare),
		store:  store,
		logger: logger.With(slog.String("component", "lp_manager")),
	}
}

// Load warm-starts holdings and the event log from the store.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	shares, err := m.store.ListShares(ctx)
	if err != nil {
		return fmt.Errorf("lp: load shares: %w", err)
	}
	events, err := m.store.ListEvents(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("lp: load events: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range shares {
		holder := s
		m.shares[s.Address] = &holder
		m.totalShares += s.Shares
	}
	m.events = events
	return nil
}

// RecordDeposit issues shares for a deposit of amount given the pool value
// before the deposit. The first depositor (or a drained pool) pays a share
// price of 1.0.
func (m *Manager) RecordDeposit(ctx context.Context, address string, amount, poolValueBefore float64) (domain.DepositResult, error) {
	if address == "" || amount <= 0 {
		return domain.DepositResult{}, fmt.Errorf("lp: address and positive amount required: %w", domain.ErrValidation)
	}
	if poolValueBefore < 0 {
		return domain.DepositResult{}, fmt.Errorf("lp: pool value %g must be >= 0: %w", poolValueBefore, domain.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sharePrice := 1.0
	if poolValueBefore > 0 && m.totalShares > 0 {
		sharePrice = poolValueBefore / m.totalShares
	}
	sharesIssued := amount / sharePrice

	holder, ok := m.shares[address]
	if !ok {
		holder = &domain.LPShare{Address: address}
		m.shares[address] = holder
	}
	holder.Shares += sharesIssued
	holder.TotalDeposited += amount
	holder.UpdatedAt = time.Now().UTC()
	m.totalShares += sharesIssued

	res := domain.DepositResult{
		Shares:     sharesIssued,
		SharePrice: sharePrice,
		PoolValue:  poolValueBefore + amount,
	}
	evt := domain.LPEvent{
		ID:         uuid.New().String(),
		Kind:       domain.LPEventDeposit,
		Address:    address,
		Amount:     amount,
		Shares:     sharesIssued,
		SharePrice: sharePrice,
		PoolValue:  res.PoolValue,
		Timestamp:  holder.UpdatedAt,
	}
	m.events = append(m.events, evt)

	if err := m.persist(ctx, *holder, evt); err != nil {
		return domain.DepositResult{}, err
	}
	m.logger.InfoContext(ctx, "lp deposit",
		slog.String("address", address),
		slog.Float64("amount", amount),
		slog.Float64("shares", sharesIssued),
		slog.Float64("share_price", sharePrice),
	)
	return res, nil
}

// RecordWithdrawal redeems shares at the share price implied by the pool
// value before the withdrawal. Fails with ErrInsufficientShares when the
// holder owns fewer shares than requested.
func (m *Manager) RecordWithdrawal(ctx context.Context, address string, shares, poolValueBefore float64) (domain.WithdrawalResult, error) {
	if address == "" || shares <= 0 {
		return domain.WithdrawalResult{}, fmt.Errorf("lp: address and positive share count required: %w", domain.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	holder, ok := m.shares[address]
	if !ok || holder.Shares < shares {
		held := 0.0
		if ok {
			held = holder.Shares
		}
		return domain.WithdrawalResult{}, fmt.Errorf("lp: %s holds %g shares, requested %g: %w",
			address, held, shares, domain.ErrInsufficientShares)
	}
	if m.totalShares <= 0 {
		return domain.WithdrawalResult{}, fmt.Errorf("lp: no shares outstanding: %w", domain.ErrInsufficientShares)
	}

	sharePrice := poolValueBefore / m.totalShares
	amount := shares * sharePrice

	holder.Shares -= shares
	holder.TotalWithdrawn += amount
	holder.UpdatedAt = time.Now().UTC()
	m.totalShares -= shares

	res := domain.WithdrawalResult{
		Amount:     amount,
		SharePrice: sharePrice,
		PoolValue:  poolValueBefore - amount,
	}
	evt := domain.LPEvent{
		ID:         uuid.New().String(),
		Kind:       domain.LPEventWithdrawal,
		Address:    address,
		Amount:     amount,
		Shares:     shares,
		SharePrice: sharePrice,
		PoolValue:  res.PoolValue,
		Timestamp:  holder.UpdatedAt,
	}
	m.events = append(m.events, evt)

	if err := m.persist(ctx, *holder, evt); err != nil {
		return domain.WithdrawalResult{}, err
	}
	m.logger.InfoContext(ctx, "lp withdrawal",
		slog.String("address", address),
		slog.Float64("shares", shares),
		slog.Float64("amount", amount),
		slog.Float64("share_price", sharePrice),
	)
	return res, nil
}

// CanWithdraw applies the withdrawal-lock policy: withdrawals are blocked
// while any market is OPEN or any position's session has not settled, which
// protects pool solvency against in-flight exposure.
func CanWithdraw(hasOpenMarkets, hasUnsettledPositions bool) domain.WithdrawCheck {
	switch {
	case hasOpenMarkets:
		return domain.WithdrawCheck{Reason: "markets are open"}
	case hasUnsettledPositions:
		return domain.WithdrawCheck{Reason: "positions are not settled"}
	default:
		return domain.WithdrawCheck{Allowed: true}
	}
}

// Stats returns a snapshot of the pool given the externally reported pool
// value.
func (m *Manager) Stats(poolValue float64) domain.PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.PoolStats{
		TotalShares: m.totalShares,
		PoolValue:   poolValue,
		SharePrice:  1.0,
	}
	if m.totalShares > 0 {
		stats.SharePrice = poolValue / m.totalShares
	}
	for _, holder := range m.shares {
		if holder.Shares > 0 {
			stats.HolderCount++
		}
		stats.TotalDeposits += holder.TotalDeposited
		stats.TotalWithdraw += holder.TotalWithdrawn
	}
	return stats
}

// Share returns one holder's position.
func (m *Manager) Share(address string) (domain.LPShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, ok := m.shares[address]
	if !ok {
		return domain.LPShare{}, fmt.Errorf("lp: %s: %w", address, domain.ErrNotFound)
	}
	return *holder, nil
}

// Events returns the append-only audit log, oldest first.
func (m *Manager) Events() []domain.LPEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LPEvent(nil), m.events...)
}

func (m *Manager) persist(ctx context.Context, holder domain.LPShare, evt domain.LPEvent) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.UpsertShare(ctx, holder); err != nil {
		return fmt.Errorf("lp: persist share %s: %w", holder.Address, err)
	}
	if err := m.store.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("lp: persist event %s: %w", evt.ID, err)
	}
	return nil
}
