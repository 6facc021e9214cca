package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
)

// fakeLedger records calls and fails on demand.
type fakeLedger struct {
	mu            sync.Mutex
	balance       int64
	sessions      map[string]bool // id -> closed
	closes        []string
	transfers     map[string]int64
	failCreate    bool
	failSubmit    bool
	failClose     map[string]bool
	failTransfer  map[string]bool
	nextSessionID int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		sessions:     make(map[string]bool),
		transfers:    make(map[string]int64),
		failClose:    make(map[string]bool),
		failTransfer: make(map[string]bool),
	}
}

func (f *fakeLedger) GetBalance(ctx context.Context, asset string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) CreateAppSession(ctx context.Context, participants []string, allocations []domain.LedgerAllocation, sessionData string) (domain.AppSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return domain.AppSession{}, errors.New("create failed")
	}
	f.nextSessionID++
	id := string(rune('a'+f.nextSessionID-1)) + "-session"
	f.sessions[id] = false
	return domain.AppSession{AppSessionID: id, Version: 1, Status: "open"}, nil
}

func (f *fakeLedger) SubmitAppState(ctx context.Context, appSessionID, intent string, version uint64, allocations []domain.LedgerAllocation, sessionData string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit {
		return 0, errors.New("submit failed")
	}
	return version, nil
}

func (f *fakeLedger) CloseAppSession(ctx context.Context, appSessionID string, allocations []domain.LedgerAllocation, sessionData string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose[appSessionID] {
		return errors.New("close failed")
	}
	f.sessions[appSessionID] = true
	f.closes = append(f.closes, appSessionID)
	return nil
}

func (f *fakeLedger) Transfer(ctx context.Context, destination, asset string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer[destination] {
		return errors.New("transfer failed")
	}
	f.transfers[destination] += amount
	return nil
}

func newTestCoordinator(t *testing.T, ledger domain.LedgerClient) *Coordinator {
	t.Helper()
	return NewCoordinator(ledger, Config{
		OperatorAddress: "0xoperator",
		Asset:           "usdc",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMicroUnitConversion(t *testing.T) {
	assert.Equal(t, int64(10_000_000), domain.ToMicro(10))
	assert.Equal(t, int64(1), domain.ToMicro(0.0000006))
	assert.InDelta(t, 2.5, domain.FromMicro(2_500_000), 1e-12)
}

func TestPoolValue(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance = 1_500_000_000
	c := newTestCoordinator(t, ledger)

	value, err := c.PoolValue(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1500, value, 1e-9)
}

func TestOpenSession(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestCoordinator(t, ledger)

	session, err := c.OpenSession(context.Background(), "0xalice", 10, `{"kind":"bet"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AppSessionID)
	assert.Equal(t, uint64(1), session.Version)

	ledger.failCreate = true
	_, err = c.OpenSession(context.Background(), "0xalice", 10, "")
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestEnrichSessionPartialSuccess(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestCoordinator(t, ledger)

	pos := domain.Position{
		ID:                "p1",
		Address:           "0xalice",
		MarketID:          "m1",
		Outcome:           "BALL",
		Shares:            12,
		CostPaid:          10,
		AppSessionID:      "a-session",
		AppSessionVersion: 1,
	}

	res := c.EnrichSession(context.Background(), pos)
	assert.True(t, res.Committed)
	assert.NoError(t, res.Err)
	assert.Equal(t, uint64(2), res.Version)

	// A ledger failure leaves the trade committed; only the enrichment is
	// marked failed.
	ledger.failSubmit = true
	res = c.EnrichSession(context.Background(), pos)
	assert.True(t, res.Committed)
	assert.Error(t, res.Err)
}

func TestAbortSessionIsBestEffort(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestCoordinator(t, ledger)

	session, err := c.OpenSession(context.Background(), "0xalice", 10, "")
	require.NoError(t, err)

	c.AbortSession(context.Background(), session, "0xalice", 10)
	assert.True(t, ledger.sessions[session.AppSessionID], "session closed")

	// A close failure must not panic or propagate.
	ledger.failClose["b-session"] = true
	c.AbortSession(context.Background(), domain.AppSession{AppSessionID: "b-session"}, "0xalice", 10)
}

func TestSettleResolution(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sessions["s-win"] = false
	ledger.sessions["s-lose"] = false
	c := newTestCoordinator(t, ledger)

	report := domain.ResolutionReport{
		MarketID: "m1",
		Winner:   "BALL",
		Winners:  2,
		Losers:   1,
		Outcomes: []domain.ResolutionOutcome{
			{Position: domain.Position{ID: "p1", Address: "0xalice", AppSessionID: "s-win", Shares: 10}, Won: true, Payout: 10},
			{Position: domain.Position{ID: "p2", Address: "0xbob", AppSessionID: "s-lose", Shares: 4, CostPaid: 2}, Won: false},
			// No session attached: winner paid by direct transfer.
			{Position: domain.Position{ID: "p3", Address: "0xcarol", Shares: 5}, Won: true, Payout: 5},
		},
	}

	out := c.SettleResolution(context.Background(), report)
	assert.Equal(t, 3, out.Settled)
	assert.Equal(t, 0, out.Failed)
	assert.NoError(t, out.FirstErr)

	assert.True(t, ledger.sessions["s-win"])
	assert.True(t, ledger.sessions["s-lose"])
	assert.Equal(t, domain.ToMicro(5), ledger.transfers["0xcarol"])
}

func TestSettleResolutionPartialFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sessions["s1"] = false
	ledger.sessions["s2"] = false
	ledger.failClose["s1"] = true
	c := newTestCoordinator(t, ledger)

	report := domain.ResolutionReport{
		MarketID: "m1",
		Winner:   "BALL",
		Outcomes: []domain.ResolutionOutcome{
			{Position: domain.Position{ID: "p1", Address: "0xalice", AppSessionID: "s1", Shares: 10}, Won: true, Payout: 10},
			{Position: domain.Position{ID: "p2", Address: "0xbob", AppSessionID: "s2", Shares: 4}, Won: true, Payout: 4},
		},
	}

	out := c.SettleResolution(context.Background(), report)
	assert.Equal(t, 1, out.Settled)
	assert.Equal(t, 1, out.Failed)
	assert.Error(t, out.FirstErr)
	assert.True(t, ledger.sessions["s2"], "remaining positions still settle")
}

func TestFundReturnsCountAndFirstError(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failTransfer["0xbob"] = true
	c := newTestCoordinator(t, ledger)

	completed, err := c.Fund(context.Background(), []string{"0xalice", "0xbob", "0xcarol"}, 5)
	assert.Equal(t, 2, completed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xbob")
	assert.Equal(t, domain.ToMicro(5), ledger.transfers["0xcarol"], "later destinations still funded")
}
