package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mv(id string, status domain.MarketStatus) domain.MarketView {
	return domain.MarketView{
		Market: domain.Market{
			ID:         id,
			GameID:     "game1",
			CategoryID: "winner",
			Status:     status,
			Outcomes:   []string{"HOME", "AWAY"},
			Quantities: []float64{0, 0},
			B:          100,
			CreatedAt:  time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		},
		Prices: []float64{0.5, 0.5},
	}
}

type fakeMarkets struct {
	items []domain.MarketView
}

func (f *fakeMarkets) Get(id string) (domain.MarketView, error) {
	for _, m := range f.items {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.MarketView{}, fmt.Errorf("market: %s: %w", id, domain.ErrNotFound)
}

func (f *fakeMarkets) List() []domain.MarketView {
	return f.items
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMarketHandlerList(t *testing.T) {
	markets := &fakeMarkets{items: []domain.MarketView{
		mv("game1-winner-1", domain.MarketStatusOpen),
		mv("game2-winner-1", domain.MarketStatusPending),
		mv("game3-winner-1", domain.MarketStatusOpen),
	}}
	h := NewMarketHandler(markets, nil, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total"])

	// Status filter.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?status=open", nil))
	body = decode(t, rec)
	assert.Equal(t, float64(2), body["total"])

	// Pagination past the end returns an empty page, not an error.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Empty(t, body["markets"])
}

func TestMarketHandlerGet(t *testing.T) {
	markets := &fakeMarkets{items: []domain.MarketView{
		mv("game1-winner-1", domain.MarketStatusOpen),
	}}
	h := NewMarketHandler(markets, nil, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/game1-winner-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "game1-winner-1", body["id"])
	assert.Equal(t, "open", body["status"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakePrices struct {
	quote service.PriceQuote
	err   error
}

func (f *fakePrices) Prices(_ context.Context, _ string) (service.PriceQuote, error) {
	return f.quote, f.err
}

func TestMarketHandlerPrices(t *testing.T) {
	markets := &fakeMarkets{items: []domain.MarketView{
		mv("game1-winner-1", domain.MarketStatusOpen),
	}}
	prices := &fakePrices{quote: service.PriceQuote{
		MarketID:  "game1-winner-1",
		Outcomes:  []string{"HOME", "AWAY"},
		Prices:    []float64{0.62, 0.38},
		UpdatedAt: time.Now().UTC(),
		Source:    "cache",
	}}
	h := NewMarketHandler(markets, prices, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/prices", h.GetPrices)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/game1-winner-1/prices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "cache", body["source"])
	assert.Equal(t, 0.62, body["prices"].([]any)[0])

	// Without a price service the endpoint answers from the market service.
	h = NewMarketHandler(markets, nil, testLogger())
	mux = http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/prices", h.GetPrices)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/game1-winner-1/prices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "live", body["source"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/nope/prices", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeBets struct {
	result service.BetResult
	err    error
	last   service.BetRequest
}

func (f *fakeBets) PlaceBet(_ context.Context, req service.BetRequest) (service.BetResult, error) {
	f.last = req
	return f.result, f.err
}

func TestBetHandlerPlace(t *testing.T) {
	bets := &fakeBets{result: service.BetResult{
		Accepted:  true,
		Shares:    92.3,
		NewPrices: []float64{0.62, 0.38},
		Position:  domain.Position{ID: "pos1", Address: "0xabc", Shares: 92.3},
	}}
	h := NewBetHandler(bets, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/bets",
		strings.NewReader(`{"address":"0xabc","market_id":"game1-winner-1","outcome":"HOME","amount":50}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "confirmed", body["settlement"])
	assert.Equal(t, "0xabc", bets.last.Address)
	assert.Equal(t, 50.0, bets.last.Amount)
}

func TestBetHandlerRejectsBadBody(t *testing.T) {
	h := NewBetHandler(&fakeBets{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(`{"bogus":`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBetHandlerValidationStatus(t *testing.T) {
	bets := &fakeBets{
		result: service.BetResult{Reason: "amount must be positive"},
		err:    fmt.Errorf("bet_service: amount -1: %w", domain.ErrValidation),
	}
	h := NewBetHandler(bets, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/bets",
		strings.NewReader(`{"address":"0xabc","market_id":"m","outcome":"HOME","amount":-1}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "amount must be positive", body["error"])
}

func TestBetHandlerPendingSettlement(t *testing.T) {
	bets := &fakeBets{result: service.BetResult{
		Accepted:      true,
		Shares:        10,
		Position:      domain.Position{ID: "pos1"},
		EnrichmentErr: fmt.Errorf("ledger write failed"),
	}}
	h := NewBetHandler(bets, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/bets",
		strings.NewReader(`{"address":"0xabc","market_id":"m","outcome":"HOME","amount":5}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["settlement"])
}

type fakeOrders struct {
	placed    service.OrderResult
	placeErr  error
	cancelled domain.Order
	cancelErr error
	depth     domain.Depth
	depthErr  error
}

func (f *fakeOrders) PlaceOrder(_ context.Context, _ service.OrderRequest) (service.OrderResult, error) {
	return f.placed, f.placeErr
}

func (f *fakeOrders) CancelOrder(_ context.Context, _ string) (domain.Order, error) {
	return f.cancelled, f.cancelErr
}

func (f *fakeOrders) GetOrder(id string) (domain.Order, error) {
	if f.placed.Order.OrderID == id {
		return f.placed.Order, nil
	}
	return domain.Order{}, fmt.Errorf("order: %s: %w", id, domain.ErrNotFound)
}

func (f *fakeOrders) Depth(_ string) (domain.Depth, error) {
	return f.depth, f.depthErr
}

func TestOrderHandlerPlace(t *testing.T) {
	orders := &fakeOrders{placed: service.OrderResult{
		Order: domain.Order{
			OrderID:  "ord1",
			MarketID: "game1-winner-1",
			Outcome:  "HOME",
			MCPS:     0.6,
			Amount:   6,
			Status:   domain.OrderStatusOpen,
		},
		Fills: []domain.Fill{{
			TakerOrderID:   "ord1",
			MakerOrderID:   "ord0",
			Shares:         10,
			EffectivePrice: 0.6,
		}},
	}}
	h := NewOrderHandler(orders, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/orders",
		strings.NewReader(`{"market_id":"game1-winner-1","address":"0xabc","outcome":"HOME","mcps":0.6,"amount":6}`))
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	fills := body["fills"].([]any)
	require.Len(t, fills, 1)
	assert.Equal(t, 0.6, fills[0].(map[string]any)["effective_price"])
}

func TestOrderHandlerCancelConflict(t *testing.T) {
	orders := &fakeOrders{
		cancelErr: fmt.Errorf("orderbook: cancel ord1: %w", domain.ErrAlreadyFilled),
	}
	h := NewOrderHandler(orders, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/orders/{id}", h.CancelOrder)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/ord1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderHandlerDepth(t *testing.T) {
	orders := &fakeOrders{depth: domain.Depth{
		MarketID: "game1-winner-1",
		Levels: map[string][]domain.DepthLevel{
			"HOME": {{Price: 0.6, Shares: 10, OrderCount: 1}},
			"AWAY": {},
		},
	}}
	h := NewOrderHandler(orders, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/depth", h.GetDepth)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/game1-winner-1/depth", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	levels := body["levels"].(map[string]any)
	require.Len(t, levels["HOME"], 1)
}

type fakePositions struct {
	byUser   map[string][]domain.Position
	byMarket map[string][]domain.Position
}

func (f *fakePositions) ByUser(address string) []domain.Position {
	return f.byUser[address]
}

func (f *fakePositions) ByMarket(marketID string) []domain.Position {
	return f.byMarket[marketID]
}

func TestPositionHandlerList(t *testing.T) {
	positions := &fakePositions{
		byUser: map[string][]domain.Position{
			"0xabc": {{ID: "pos1", Address: "0xabc"}, {ID: "pos2", Address: "0xabc"}},
		},
		byMarket: map[string][]domain.Position{
			"game1-winner-1": {{ID: "pos1"}},
		},
	}
	h := NewPositionHandler(positions, testLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?address=0xabc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["total"])

	rec = httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?market=game1-winner-1", nil))
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["total"])

	// One of address or market is required, and not both.
	rec = httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?address=a&market=m", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakePool struct {
	deposit     domain.DepositResult
	withdraw    domain.WithdrawalResult
	withdrawErr error
	stats       domain.PoolStats
	events      []domain.LPEvent
}

func (f *fakePool) Deposit(_ context.Context, _ string, _ float64) (domain.DepositResult, error) {
	return f.deposit, nil
}

func (f *fakePool) Withdraw(_ context.Context, _ string, _ float64) (domain.WithdrawalResult, error) {
	return f.withdraw, f.withdrawErr
}

func (f *fakePool) Stats(_ context.Context) (domain.PoolStats, error) {
	return f.stats, nil
}

func (f *fakePool) Share(address string) (domain.LPShare, error) {
	return domain.LPShare{}, fmt.Errorf("lp: %s: %w", address, domain.ErrNotFound)
}

func (f *fakePool) Events() []domain.LPEvent {
	return f.events
}

func TestPoolHandlerWithdrawLocked(t *testing.T) {
	pool := &fakePool{
		withdrawErr: &service.WithdrawalLockedError{Reason: "1 market still live"},
	}
	h := NewPoolHandler(pool, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/pool/withdrawals",
		strings.NewReader(`{"address":"0xlp","shares":100}`))
	rec := httptest.NewRecorder()
	h.Withdraw(rec, req)

	require.Equal(t, http.StatusLocked, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1 market still live", body["error"])
}

func TestPoolHandlerDepositAndStats(t *testing.T) {
	pool := &fakePool{
		deposit: domain.DepositResult{Shares: 1000, SharePrice: 1.0, PoolValue: 11000},
		stats:   domain.PoolStats{TotalShares: 1000, PoolValue: 11000, SharePrice: 11, HolderCount: 1},
	}
	h := NewPoolHandler(pool, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/pool/deposits",
		strings.NewReader(`{"address":"0xlp","amount":1000}`))
	rec := httptest.NewRecorder()
	h.Deposit(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1000), body["shares"])

	rec = httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/pool", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["holder_count"])
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrInvalidOutcome, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrMarketNotOpen, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrWithdrawalsLocked, http.StatusLocked},
		{domain.ErrLedgerUnavailable, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", domain.ErrAlreadyFilled), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), tc.err.Error())
	}
}

type fakeOracle struct {
	created  domain.MarketView
	lastB    float64
	resolved service.ResolutionResult
	archives map[string]string
	funded   int
	fundErr  error
	err      error
}

func (f *fakeOracle) CreateMarket(_ context.Context, gameID, categoryID string, outcomes []string, b float64) (domain.MarketView, error) {
	f.lastB = b
	return f.created, f.err
}

func (f *fakeOracle) OpenMarket(_ context.Context, _ string) (domain.MarketView, error) {
	return f.created, f.err
}

func (f *fakeOracle) CloseMarket(_ context.Context, _ string) (domain.MarketView, error) {
	return f.created, f.err
}

func (f *fakeOracle) ResolveMarket(_ context.Context, _, _ string) (service.ResolutionResult, error) {
	return f.resolved, f.err
}

func (f *fakeOracle) ResolutionArchive(_ context.Context, id string) (io.ReadCloser, error) {
	body, ok := f.archives[id]
	if !ok {
		return nil, fmt.Errorf("oracle: archive %s: %w", id, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeOracle) ListResolutionArchives(_ context.Context) ([]domain.BlobInfo, error) {
	infos := make([]domain.BlobInfo, 0, len(f.archives))
	for id, body := range f.archives {
		infos = append(infos, domain.BlobInfo{
			Path: domain.ResolutionArchivePath(id),
			Size: int64(len(body)),
		})
	}
	return infos, nil
}

func (f *fakeOracle) FundAccounts(_ context.Context, destinations []string, _ float64) (int, error) {
	if len(destinations) == 0 {
		return 0, fmt.Errorf("oracle: no destinations: %w", domain.ErrValidation)
	}
	return f.funded, f.fundErr
}

func TestOracleHandlerCreateDefaultsLiquidity(t *testing.T) {
	oracle := &fakeOracle{created: mv("game1-winner-1", domain.MarketStatusPending)}
	h := NewOracleHandler(oracle, 250, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/oracle/markets",
		strings.NewReader(`{"game_id":"game1","category_id":"winner","outcomes":["HOME","AWAY"]}`))
	rec := httptest.NewRecorder()
	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 250.0, oracle.lastB)

	// An explicit parameter wins over the default.
	req = httptest.NewRequest(http.MethodPost, "/api/oracle/markets",
		strings.NewReader(`{"game_id":"game1","category_id":"winner","outcomes":["HOME","AWAY"],"liquidity_b":80}`))
	rec = httptest.NewRecorder()
	h.CreateMarket(rec, req)
	assert.Equal(t, 80.0, oracle.lastB)
}

func TestOracleHandlerResolve(t *testing.T) {
	winner := "HOME"
	resolvedView := mv("game1-winner-1", domain.MarketStatusResolved)
	resolvedView.Winner = &winner
	oracle := &fakeOracle{resolved: service.ResolutionResult{
		Market: resolvedView,
		Report: domain.ResolutionReport{Winner: winner, Winners: 2, Losers: 1, TotalPayout: 150},
		Settled: 3,
	}}
	h := NewOracleHandler(oracle, 100, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oracle/markets/{id}/resolve", h.ResolveMarket)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/oracle/markets/game1-winner-1/resolve",
		strings.NewReader(`{"outcome":"HOME"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "HOME", body["winner"])
	assert.Equal(t, float64(3), body["settled"])

	// Resolving before close maps to a conflict.
	oracle.err = fmt.Errorf("market: resolve: %w", domain.ErrInvalidTransition)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/oracle/markets/game1-winner-1/resolve",
		strings.NewReader(`{"outcome":"HOME"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOracleHandlerResolutionArchive(t *testing.T) {
	record := `{"type":"market","winner":"HOME"}` + "\n" + `{"type":"payout","address":"0xabc"}` + "\n"
	oracle := &fakeOracle{archives: map[string]string{"game1-winner-1": record}}
	h := NewOracleHandler(oracle, 100, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/oracle/markets/{id}/archive", h.GetResolutionArchive)
	mux.HandleFunc("GET /api/oracle/archives", h.ListResolutionArchives)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/markets/game1-winner-1/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, record, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/markets/never-resolved/archive", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/archives", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total"])
	entry := body["archives"].([]any)[0].(map[string]any)
	assert.Equal(t, domain.ResolutionArchivePath("game1-winner-1"), entry["path"])
}

func TestOracleHandlerFund(t *testing.T) {
	oracle := &fakeOracle{funded: 2}
	h := NewOracleHandler(oracle, 100, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/oracle/fund",
		strings.NewReader(`{"addresses":["0xabc","0xdef"],"amount":25}`))
	rec := httptest.NewRecorder()
	h.FundAccounts(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["requested"])
	assert.Equal(t, float64(2), body["funded"])
	assert.NotContains(t, body, "error")

	// Empty address list is a validation error.
	req = httptest.NewRequest(http.MethodPost, "/api/oracle/fund",
		strings.NewReader(`{"addresses":[],"amount":25}`))
	rec = httptest.NewRecorder()
	h.FundAccounts(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A partial failure keeps the 200 and reports the error.
	oracle.funded = 1
	oracle.fundErr = fmt.Errorf("coordinator: transfer 0xdef: %w", domain.ErrLedgerUnavailable)
	req = httptest.NewRequest(http.MethodPost, "/api/oracle/fund",
		strings.NewReader(`{"addresses":["0xabc","0xdef"],"amount":25}`))
	rec = httptest.NewRecorder()
	h.FundAccounts(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["funded"])
	assert.Contains(t, body["error"], "transfer 0xdef")
}
