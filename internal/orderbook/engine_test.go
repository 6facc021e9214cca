package orderbook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

// fakeMarketSource serves a fixed set of markets.
type fakeMarketSource struct {
	markets map[string]domain.MarketView
}

func (f *fakeMarketSource) Get(id string) (domain.MarketView, error) {
	mv, ok := f.markets[id]
	if !ok {
		return domain.MarketView{}, fmt.Errorf("fake: %s: %w", id, domain.ErrNotFound)
	}
	return mv, nil
}

func binaryMarket(id string, status domain.MarketStatus) domain.MarketView {
	return domain.MarketView{
		Market: domain.Market{
			ID:         id,
			GameID:     "game1",
			CategoryID: "pitch",
			Status:     status,
			Outcomes:   []string{"BALL", "STRIKE"},
			Quantities: []float64{0, 0},
			B:          10,
			CreatedAt:  time.Now().UTC(),
		},
		Prices: []float64{0.5, 0.5},
	}
}

func TestEngineValidatesMarketStatus(t *testing.T) {
	src := &fakeMarketSource{markets: map[string]domain.MarketView{
		"open-1":   binaryMarket("open-1", domain.MarketStatusOpen),
		"closed-1": binaryMarket("closed-1", domain.MarketStatusClosed),
	}}
	e := NewEngine(src, Config{})

	_, err := e.PlaceOrder("closed-1", "alice", "BALL", 0.5, 5)
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)

	_, err = e.PlaceOrder("missing", "alice", "BALL", 0.5, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := e.PlaceOrder("open-1", "alice", "BALL", 0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, res.Order.Status)
}

func TestEngineCrossMarketLookup(t *testing.T) {
	src := &fakeMarketSource{markets: map[string]domain.MarketView{
		"m1": binaryMarket("m1", domain.MarketStatusOpen),
		"m2": binaryMarket("m2", domain.MarketStatusOpen),
	}}
	e := NewEngine(src, Config{})

	r1, err := e.PlaceOrder("m1", "alice", "BALL", 0.5, 5)
	require.NoError(t, err)
	r2, err := e.PlaceOrder("m2", "bob", "STRIKE", 0.5, 5)
	require.NoError(t, err)

	// Orders in different markets never cross.
	assert.Empty(t, r2.Fills)

	got, err := e.GetOrder(r1.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MarketID)

	cancelled, err := e.CancelOrder(r2.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	_, err = e.CancelOrder("unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngineCancelAll(t *testing.T) {
	src := &fakeMarketSource{markets: map[string]domain.MarketView{
		"m1": binaryMarket("m1", domain.MarketStatusOpen),
	}}
	e := NewEngine(src, Config{})

	_, err := e.PlaceOrder("m1", "alice", "BALL", 0.7, 7)
	require.NoError(t, err)
	_, err = e.PlaceOrder("m1", "bob", "STRIKE", 0.4, 4)
	require.NoError(t, err)

	cancelled, err := e.CancelAll("m1")
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)

	d, err := e.Depth("m1")
	require.NoError(t, err)
	assert.Empty(t, d.Levels["BALL"])
	assert.Empty(t, d.Levels["STRIKE"])
}

func TestEngineRestore(t *testing.T) {
	src := &fakeMarketSource{markets: map[string]domain.MarketView{
		"open-1": binaryMarket("open-1", domain.MarketStatusOpen),
	}}
	e := NewEngine(src, Config{})

	older := time.Now().UTC().Add(-time.Hour)
	recovered := []domain.Order{
		{
			OrderID: "ord-2", MarketID: "open-1", UserAddress: "bob",
			Outcome: "BALL", MCPS: 0.6, Amount: 6,
			UnfilledAmount: 6, MaxShares: 10, UnfilledShares: 10,
			Status: domain.OrderStatusOpen, CreatedAt: older.Add(time.Minute),
		},
		{
			OrderID: "ord-1", MarketID: "open-1", UserAddress: "alice",
			Outcome: "BALL", MCPS: 0.6, Amount: 6,
			UnfilledAmount: 6, MaxShares: 10, UnfilledShares: 10,
			Status: domain.OrderStatusOpen, CreatedAt: older,
		},
	}
	require.NoError(t, e.Restore("open-1", recovered))

	depth, err := e.Depth("open-1")
	require.NoError(t, err)
	require.Len(t, depth.Levels["BALL"], 1)
	assert.Equal(t, 20.0, depth.Levels["BALL"][0].Shares)

	// Oldest restored order has time priority: a crossing taker fills
	// ord-1 first despite the slice order above.
	res, err := e.PlaceOrder("open-1", "carol", "STRIKE", 0.4, 4)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, "ord-1", res.Fills[0].MakerOrderID)

	// Restoring an already-present order is refused.
	err = e.Restore("open-1", recovered[:1])
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}
