package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

func TestPoolDepositIssuesShares(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// First depositor gets shares 1:1 regardless of the wallet balance.
	result, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, result.Shares, 1e-9)
	assert.InDelta(t, 1.0, result.SharePrice, 1e-9)

	require.Len(t, e.bus.byEvent(domain.ChannelPool, domain.EventPoolUpdate), 1)

	// Later depositors pay the live share price.
	stats, err := e.pools.Stats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, stats.TotalShares, 1e-9)
	assert.InDelta(t, 10_000.0, stats.PoolValue, 1e-9)
}

func TestPoolWithdrawLockedWhileMarketsOpen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)

	e.openMarket(t, []string{"YES", "NO"})

	_, err = e.pools.Withdraw(ctx, "0xlp1", 100)
	require.ErrorIs(t, err, domain.ErrWithdrawalsLocked)

	var locked *WithdrawalLockedError
	require.ErrorAs(t, err, &locked)
	assert.Contains(t, locked.Reason, "open")
}

func TestPoolWithdrawLockedWhileUnsettled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)
	mv := e.openMarket(t, []string{"YES", "NO"})

	_, err = e.bets.PlaceBet(ctx, BetRequest{Address: "0xalice", MarketID: mv.ID, Outcome: "YES", Amount: 50})
	require.NoError(t, err)
	_, err = e.oracle.CloseMarket(ctx, mv.ID)
	require.NoError(t, err)

	// Market closed but the position is still live.
	_, err = e.pools.Withdraw(ctx, "0xlp1", 100)
	require.ErrorIs(t, err, domain.ErrWithdrawalsLocked)

	_, err = e.oracle.ResolveMarket(ctx, mv.ID, "YES")
	require.NoError(t, err)

	_, err = e.pools.Withdraw(ctx, "0xlp1", 100)
	require.NoError(t, err)
}

func TestPoolWithdrawPaysFromWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)

	// Wallet holds 10,000, the LP owns all 1000 shares: price 10 each.
	result, err := e.pools.Withdraw(ctx, "0xlp1", 500)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, result.SharePrice, 1e-9)
	assert.InDelta(t, 5000.0, result.Amount, 1e-9)
	assert.Equal(t, domain.ToMicro(5000), e.ledger.transfers["0xlp1"])

	share, err := e.pools.Share("0xlp1")
	require.NoError(t, err)
	assert.InDelta(t, 500.0, share.Shares, 1e-9)
}

func TestPoolWithdrawInsufficientShares(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 100)
	require.NoError(t, err)

	_, err = e.pools.Withdraw(ctx, "0xlp1", 200)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestPoolWithdrawTransferFailureReverts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)

	e.ledger.failTransfer = true
	_, err = e.pools.Withdraw(ctx, "0xlp1", 500)
	require.Error(t, err)

	// The burned shares came back; nothing left the wallet.
	share, err := e.pools.Share("0xlp1")
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, share.Shares, 1e-9)
	assert.Zero(t, e.ledger.transfers["0xlp1"])
}

func TestPoolEventsLog(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pools.Deposit(ctx, "0xlp1", 1000)
	require.NoError(t, err)
	_, err = e.pools.Withdraw(ctx, "0xlp1", 100)
	require.NoError(t, err)

	events := e.pools.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.LPEventDeposit, events[0].Kind)
	assert.Equal(t, domain.LPEventWithdrawal, events[1].Kind)
}
