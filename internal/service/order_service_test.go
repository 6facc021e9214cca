package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

func TestPlaceOrderValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []OrderRequest{
		{MarketID: "m", Outcome: "YES", MCPS: 0.5, Amount: 10},              // no address
		{UserAddress: "0xa", MarketID: "m", Outcome: "YES", MCPS: 0, Amount: 10},   // mcps at bound
		{UserAddress: "0xa", MarketID: "m", Outcome: "YES", MCPS: 1, Amount: 10},   // mcps at bound
		{UserAddress: "0xa", MarketID: "m", Outcome: "YES", MCPS: 0.5, Amount: 0},  // no amount
	}
	for _, req := range cases {
		_, err := e.orders.PlaceOrder(ctx, req)
		require.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Zero(t, e.ledger.openSessions())
}

func TestPlaceOrderRestsWhenUnmatched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})

	result, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xalice",
		Outcome:     "BALL",
		MCPS:        0.60,
		Amount:      6,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, result.Order.Status)
	assert.Empty(t, result.Fills)
	assert.NotEmpty(t, result.Order.AppSessionID)
	assert.Equal(t, 1, e.ledger.openSessions())

	require.Len(t, e.bus.byEvent(domain.ChannelOrders, domain.EventOrderPlaced), 1)
	assert.Empty(t, e.bus.byEvent(domain.ChannelOrders, domain.EventOrderFilled))
}

func TestPlaceOrderMatchRecordsBothPositions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})

	maker, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xalice",
		Outcome:     "BALL",
		MCPS:        0.60,
		Amount:      6,
	})
	require.NoError(t, err)

	taker, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xbob",
		Outcome:     "STRIKE",
		MCPS:        0.40,
		Amount:      4,
	})
	require.NoError(t, err)
	require.Len(t, taker.Fills, 1)

	fill := taker.Fills[0]
	assert.InDelta(t, 10.0, fill.Shares, 1e-9)
	assert.InDelta(t, 0.60, fill.EffectivePrice, 1e-9)

	// One position per side, both at the maker's price level.
	alicePos := e.tracker.ByUser("0xalice")
	bobPos := e.tracker.ByUser("0xbob")
	require.Len(t, alicePos, 1)
	require.Len(t, bobPos, 1)
	assert.Equal(t, "BALL", alicePos[0].Outcome)
	assert.Equal(t, "STRIKE", bobPos[0].Outcome)
	assert.InDelta(t, 6.0, alicePos[0].CostPaid, 1e-9)
	assert.InDelta(t, 4.0, bobPos[0].CostPaid, 1e-9)
	assert.Equal(t, domain.PositionModeP2P, alicePos[0].Mode)
	assert.Equal(t, maker.Order.AppSessionID, alicePos[0].AppSessionID)
	assert.Equal(t, taker.Order.AppSessionID, bobPos[0].AppSessionID)

	require.Len(t, e.bus.byEvent(domain.ChannelOrders, domain.EventOrderFilled), 1)
}

func TestPlaceOrderFillChargesEachSideItsOwnPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})

	// The maker rests strictly below the taker's complement (0.50 < 0.60),
	// so the pair matches below combined probability 1.
	_, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xalice",
		Outcome:     "BALL",
		MCPS:        0.50,
		Amount:      5,
	})
	require.NoError(t, err)

	taker, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xbob",
		Outcome:     "STRIKE",
		MCPS:        0.40,
		Amount:      4,
	})
	require.NoError(t, err)
	require.Len(t, taker.Fills, 1)
	assert.InDelta(t, 10.0, taker.Fills[0].Shares, 1e-9)
	assert.InDelta(t, 0.50, taker.Fills[0].EffectivePrice, 1e-9)

	// The taker's order fills its whole notional and no more.
	assert.Equal(t, domain.OrderStatusFilled, taker.Order.Status)
	assert.InDelta(t, 4.0, taker.Order.FilledAmount, 1e-9)
	assert.Zero(t, taker.Order.UnfilledAmount)

	// Each position books at that side's own limit price, so cost paid
	// never exceeds the notional escrowed in the session.
	alicePos := e.tracker.ByUser("0xalice")
	bobPos := e.tracker.ByUser("0xbob")
	require.Len(t, alicePos, 1)
	require.Len(t, bobPos, 1)
	assert.InDelta(t, 5.0, alicePos[0].CostPaid, 1e-9)
	assert.InDelta(t, 4.0, bobPos[0].CostPaid, 1e-9)
	assert.LessOrEqual(t, bobPos[0].CostPaid, taker.Order.Amount+1e-9)

	// The 0.10/share shortfall against the 1-unit redemption is reported.
	filled := e.bus.byEvent(domain.ChannelOrders, domain.EventOrderFilled)
	require.Len(t, filled, 1)
	assert.InDelta(t, 1.0, filled[0]["funding_gap"].(float64), 1e-9)
}

func TestPlaceOrderClosedMarketCompensates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})
	_, err := e.oracle.CloseMarket(ctx, mv.ID)
	require.NoError(t, err)

	_, err = e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xalice",
		Outcome:     "BALL",
		MCPS:        0.60,
		Amount:      6,
	})
	require.ErrorIs(t, err, domain.ErrMarketNotOpen)
	assert.Zero(t, e.ledger.openSessions())
}

func TestCancelOrderReturnsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})

	placed, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID:    mv.ID,
		UserAddress: "0xalice",
		Outcome:     "BALL",
		MCPS:        0.60,
		Amount:      6,
	})
	require.NoError(t, err)
	require.Equal(t, 1, e.ledger.openSessions())

	cancelled, err := e.orders.CancelOrder(ctx, placed.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Zero(t, e.ledger.openSessions())

	require.Len(t, e.bus.byEvent(domain.ChannelOrders, domain.EventOrderCancelled), 1)

	_, err = e.orders.CancelOrder(ctx, placed.Order.OrderID)
	require.ErrorIs(t, err, domain.ErrAlreadyFilled)
}

func TestOrderDepthThroughService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mv := e.openMarket(t, []string{"BALL", "STRIKE"})

	// 0.70 + 0.40 > 1, so neither order crosses the other.
	_, err := e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID: mv.ID, UserAddress: "0xalice", Outcome: "BALL", MCPS: 0.70, Amount: 7,
	})
	require.NoError(t, err)
	_, err = e.orders.PlaceOrder(ctx, OrderRequest{
		MarketID: mv.ID, UserAddress: "0xbob", Outcome: "STRIKE", MCPS: 0.40, Amount: 4,
	})
	require.NoError(t, err)

	depth, err := e.orders.Depth(mv.ID)
	require.NoError(t, err)
	require.Len(t, depth.Levels["BALL"], 1)
	require.Len(t, depth.Levels["STRIKE"], 1)
	assert.InDelta(t, 0.70, depth.Levels["BALL"][0].Price, 1e-9)
}
