package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openodds/markethub/internal/service"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, req service.BetRequest) (service.BetResult, error)
}

// BetHandler serves the LMSR betting endpoint.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

type placeBetRequest struct {
	Address  string  `json:"address"`
	MarketID string  `json:"market_id"`
	Outcome  string  `json:"outcome"`
	Amount   float64 `json:"amount"`
}

type placeBetResponse struct {
	Accepted   bool             `json:"accepted"`
	Reason     string           `json:"reason,omitempty"`
	Shares     float64          `json:"shares,omitempty"`
	NewPrices  []float64        `json:"new_prices,omitempty"`
	Position   positionResponse `json:"position"`
	Settlement string           `json:"settlement"`
}

// PlaceBet executes one bet against the market maker.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.bets.PlaceBet(r.Context(), service.BetRequest{
		Address:  req.Address,
		MarketID: req.MarketID,
		Outcome:  req.Outcome,
		Amount:   req.Amount,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: bet rejected",
			slog.String("address", req.Address),
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		status := statusForError(err)
		msg := result.Reason
		if msg == "" {
			msg = "bet rejected"
		}
		writeError(w, status, msg)
		return
	}

	// A ledger enrichment failure does not void the trade; the session
	// update will be retried at resolution.
	settlement := "confirmed"
	if result.EnrichmentErr != nil {
		settlement = "pending"
	}

	writeJSON(w, http.StatusCreated, placeBetResponse{
		Accepted:   result.Accepted,
		Shares:     result.Shares,
		NewPrices:  result.NewPrices,
		Position:   positionJSON(result.Position),
		Settlement: settlement,
	})
}
