package market

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createOpen(t *testing.T, mg *Manager, gameID, categoryID string) domain.MarketView {
	t.Helper()
	ctx := context.Background()
	mv, err := mg.Create(ctx, gameID, categoryID, []string{"BALL", "STRIKE"}, 10)
	require.NoError(t, err)
	mv, err = mg.Open(ctx, mv.ID)
	require.NoError(t, err)
	return mv
}

func TestCreateAllocatesSequentialIDs(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()

	mv, err := mg.Create(ctx, "game1", "pitch", []string{"BALL", "STRIKE"}, 10)
	require.NoError(t, err)
	assert.Equal(t, "game1-pitch-1", mv.ID)
	assert.Equal(t, domain.MarketStatusPending, mv.Status)
	assert.Equal(t, []float64{0, 0}, mv.Quantities)
	assert.InDelta(t, 0.5, mv.Prices[0], 1e-12)

	// A second live market for the same pair is rejected.
	_, err = mg.Create(ctx, "game1", "pitch", []string{"BALL", "STRIKE"}, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Other categories are independent.
	mv2, err := mg.Create(ctx, "game1", "atbat", []string{"HIT", "OUT", "WALK"}, 25)
	require.NoError(t, err)
	assert.Equal(t, "game1-atbat-1", mv2.ID)
	assert.InDelta(t, 1.0/3, mv2.Prices[1], 1e-9)
}

func TestCreateValidation(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()

	_, err := mg.Create(ctx, "g", "c", []string{"ONLY"}, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = mg.Create(ctx, "g", "c", []string{"A", "B"}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = mg.Create(ctx, "g", "c", []string{"A", "A"}, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = mg.Create(ctx, "", "c", []string{"A", "B"}, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLifecycleTransitions(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()

	mv, err := mg.Create(ctx, "g", "c", []string{"A", "B"}, 10)
	require.NoError(t, err)

	// Close before open is rejected, as is resolving a non-closed market.
	_, err = mg.Close(ctx, mv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = mg.Resolve(ctx, mv.ID, "A")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	mv, err = mg.Open(ctx, mv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, mv.Status)

	_, err = mg.Open(ctx, mv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	mv, err = mg.Close(ctx, mv.ID)
	require.NoError(t, err)

	_, err = mg.Resolve(ctx, mv.ID, "NOPE")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	mv, err = mg.Resolve(ctx, mv.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, mv.Status)
	require.NotNil(t, mv.Winner)
	assert.Equal(t, "B", *mv.Winner)

	// Terminal: no further transitions.
	_, err = mg.Resolve(ctx, mv.ID, "B")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOnlyOneOpenMarketPerCategory(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()

	first := createOpen(t, mg, "g", "c")

	// Resolve the first so a second can be created, then close the window:
	// creating is allowed again but opening while another is OPEN is not.
	_, err := mg.Close(ctx, first.ID)
	require.NoError(t, err)
	_, err = mg.Resolve(ctx, first.ID, "BALL")
	require.NoError(t, err)

	second, err := mg.Create(ctx, "g", "c", []string{"BALL", "STRIKE"}, 10)
	require.NoError(t, err)
	assert.Equal(t, "g-c-2", second.ID)

	third, err := mg.Create(ctx, "g2", "c", []string{"BALL", "STRIKE"}, 10)
	require.NoError(t, err)

	_, err = mg.Open(ctx, second.ID)
	require.NoError(t, err)
	_, err = mg.Open(ctx, third.ID)
	require.NoError(t, err, "different game is independent")
}

func TestApplyBetMovesPrices(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()
	mv := createOpen(t, mg, "g", "c")

	quote, err := mg.ApplyBet(ctx, mv.ID, "BALL", 10)
	require.NoError(t, err)
	assert.Greater(t, quote.Shares, 0.0)
	assert.Equal(t, 10.0, quote.CostPaid)
	assert.Greater(t, quote.NewPrices[0], 0.5)

	// Bets on unknown outcomes or closed markets are rejected.
	_, err = mg.ApplyBet(ctx, mv.ID, "FOUL", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = mg.Close(ctx, mv.ID)
	require.NoError(t, err)
	_, err = mg.ApplyBet(ctx, mv.ID, "BALL", 10)
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestApplyBetSerializesConcurrentBets(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()
	mv := createOpen(t, mg, "g", "c")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := mg.ApplyBet(ctx, mv.ID, "BALL", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// No lost updates: every bet's shares landed in the quantity vector,
	// so the total cost of the accumulated quantity equals n dollars.
	got, err := mg.Get(mv.ID)
	require.NoError(t, err)
	assert.Greater(t, got.Quantities[0], 0.0)
	assert.Equal(t, 0.0, got.Quantities[1])
	assert.Greater(t, got.Prices[0], 0.5)
}

func TestUpdateQuantities(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()
	mv := createOpen(t, mg, "g", "c")

	got, err := mg.UpdateQuantities(ctx, mv.ID, []float64{5, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 3}, got.Quantities)

	_, err = mg.UpdateQuantities(ctx, mv.ID, []float64{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = mg.Close(ctx, mv.ID)
	require.NoError(t, err)
	_, err = mg.UpdateQuantities(ctx, mv.ID, []float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestHasOpenMarkets(t *testing.T) {
	mg := newTestManager(t)
	ctx := context.Background()

	assert.False(t, mg.HasOpenMarkets())
	mv := createOpen(t, mg, "g", "c")
	assert.True(t, mg.HasOpenMarkets())

	_, err := mg.Close(ctx, mv.ID)
	require.NoError(t, err)
	assert.False(t, mg.HasOpenMarkets())
}

func TestGetUnknownMarket(t *testing.T) {
	mg := newTestManager(t)
	_, err := mg.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
