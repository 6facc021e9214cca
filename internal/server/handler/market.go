package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// market manager. It is declared locally so the handler package does not
// depend on the concrete implementation.
type MarketService interface {
	Get(id string) (domain.MarketView, error)
	List() []domain.MarketView
}

// PriceService serves cache-first price reads for the hot polling endpoint.
type PriceService interface {
	Prices(ctx context.Context, marketID string) (service.PriceQuote, error)
}

// MarketHandler serves read-only market endpoints.
type MarketHandler struct {
	markets MarketService
	prices  PriceService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. prices may be nil; the prices
// endpoint then answers from the market service directly.
func NewMarketHandler(markets MarketService, prices PriceService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		prices:  prices,
		logger:  logger,
	}
}

// marketResponse is the wire representation of a market plus its prices.
type marketResponse struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	CategoryID string    `json:"category_id"`
	Status     string    `json:"status"`
	Outcomes   []string  `json:"outcomes"`
	Prices     []float64 `json:"prices"`
	B          float64   `json:"liquidity_b"`
	Winner     *string   `json:"winner,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func marketJSON(mv domain.MarketView) marketResponse {
	return marketResponse{
		ID:         mv.ID,
		GameID:     mv.GameID,
		CategoryID: mv.CategoryID,
		Status:     string(mv.Status),
		Outcomes:   mv.Outcomes,
		Prices:     mv.Prices,
		B:          mv.B,
		Winner:     mv.Winner,
		CreatedAt:  mv.CreatedAt,
		UpdatedAt:  mv.UpdatedAt,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns tracked markets with pagination and an optional status
// filter.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := r.URL.Query().Get("status")

	all := h.markets.List()
	filtered := all[:0:0]
	for _, mv := range all {
		if status == "" || string(mv.Status) == status {
			filtered = append(filtered, mv)
		}
	}

	total := len(filtered)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	out := make([]marketResponse, 0, end-start)
	for _, mv := range filtered[start:end] {
		out = append(out, marketJSON(mv))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	mv, err := h.markets.Get(id)
	if err != nil {
		writeError(w, statusForError(err), "market not found")
		return
	}

	writeJSON(w, http.StatusOK, marketJSON(mv))
}

// pricesResponse is the wire representation of a market's price vector.
type pricesResponse struct {
	MarketID  string    `json:"market_id"`
	Outcomes  []string  `json:"outcomes"`
	Prices    []float64 `json:"prices"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// GetPrices returns a market's current outcome prices, served from the price
// cache when it is warm.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if h.prices == nil {
		mv, err := h.markets.Get(id)
		if err != nil {
			writeError(w, statusForError(err), "market not found")
			return
		}
		writeJSON(w, http.StatusOK, pricesResponse{
			MarketID:  mv.ID,
			Outcomes:  mv.Outcomes,
			Prices:    mv.Prices,
			UpdatedAt: mv.UpdatedAt,
			Source:    "live",
		})
		return
	}

	quote, err := h.prices.Prices(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "market not found")
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{
		MarketID:  quote.MarketID,
		Outcomes:  quote.Outcomes,
		Prices:    quote.Prices,
		UpdatedAt: quote.UpdatedAt,
		Source:    quote.Source,
	})
}
