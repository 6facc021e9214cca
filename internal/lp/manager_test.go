package lp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDepositGrowthWithdrawScenario(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// First depositor at an empty pool gets a 1.0 share price.
	dep, err := m.RecordDeposit(ctx, "alice", 1000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1000, dep.Shares, 1e-9)
	assert.InDelta(t, 1.0, dep.SharePrice, 1e-9)
	assert.InDelta(t, 1000, dep.PoolValue, 1e-9)

	// Pool grows to 2000 with 1000 shares out: share price is 2.0.
	stats := m.Stats(2000)
	assert.InDelta(t, 2.0, stats.SharePrice, 1e-9)

	// Withdrawing 500 shares at that price returns 1000.
	wd, err := m.RecordWithdrawal(ctx, "alice", 500, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 1000, wd.Amount, 1e-9)
	assert.InDelta(t, 2.0, wd.SharePrice, 1e-9)
	assert.InDelta(t, 1000, wd.PoolValue, 1e-9)

	share, err := m.Share("alice")
	require.NoError(t, err)
	assert.InDelta(t, 500, share.Shares, 1e-9)
	assert.InDelta(t, 1000, share.TotalDeposited, 1e-9)
	assert.InDelta(t, 1000, share.TotalWithdrawn, 1e-9)
}

func TestProportionalIssuance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.RecordDeposit(ctx, "alice", 1000, 0)
	require.NoError(t, err)

	// Bob deposits 500 when the pool is worth 2000: share price 2.0, so he
	// gets 250 shares and owns 1/5 of the grown pool.
	dep, err := m.RecordDeposit(ctx, "bob", 500, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 250, dep.Shares, 1e-9)
	assert.InDelta(t, 2.0, dep.SharePrice, 1e-9)

	stats := m.Stats(2500)
	assert.InDelta(t, 1250, stats.TotalShares, 1e-9)
	assert.Equal(t, 2, stats.HolderCount)
}

func TestWithdrawalValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.RecordWithdrawal(ctx, "ghost", 10, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = m.RecordDeposit(ctx, "alice", 100, 0)
	require.NoError(t, err)

	_, err = m.RecordWithdrawal(ctx, "alice", 200, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = m.RecordWithdrawal(ctx, "alice", 0, 100)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.RecordDeposit(ctx, "alice", -5, 100)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCanWithdraw(t *testing.T) {
	check := CanWithdraw(true, false)
	assert.False(t, check.Allowed)
	assert.Equal(t, "markets are open", check.Reason)

	check = CanWithdraw(false, true)
	assert.False(t, check.Allowed)
	assert.Equal(t, "positions are not settled", check.Reason)

	check = CanWithdraw(true, true)
	assert.False(t, check.Allowed)

	check = CanWithdraw(false, false)
	assert.True(t, check.Allowed)
	assert.Empty(t, check.Reason)
}

func TestEventLogIsAppendOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.RecordDeposit(ctx, "alice", 100, 0)
	require.NoError(t, err)
	_, err = m.RecordDeposit(ctx, "bob", 50, 100)
	require.NoError(t, err)
	_, err = m.RecordWithdrawal(ctx, "alice", 25, 150)
	require.NoError(t, err)

	events := m.Events()
	require.Len(t, events, 3)
	assert.Equal(t, domain.LPEventDeposit, events[0].Kind)
	assert.Equal(t, "alice", events[0].Address)
	assert.Equal(t, domain.LPEventDeposit, events[1].Kind)
	assert.Equal(t, domain.LPEventWithdrawal, events[2].Kind)

	// Mutating the returned slice must not affect the log.
	events[0].Address = "mallory"
	assert.Equal(t, "alice", m.Events()[0].Address)
}
