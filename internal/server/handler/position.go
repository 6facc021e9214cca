package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
)

// PositionService defines what the position handler needs from the tracker.
type PositionService interface {
	ByUser(address string) []domain.Position
	ByMarket(marketID string) []domain.Position
}

// PositionHandler serves position read endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type positionResponse struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	MarketID       string    `json:"market_id"`
	Outcome        string    `json:"outcome"`
	Shares         float64   `json:"shares"`
	CostPaid       float64   `json:"cost_paid"`
	Fee            float64   `json:"fee"`
	SessionStatus  string    `json:"session_status"`
	SessionVersion uint64    `json:"session_version"`
	Mode           string    `json:"mode"`
	Timestamp      time.Time `json:"timestamp"`
}

func positionJSON(p domain.Position) positionResponse {
	return positionResponse{
		ID:             p.ID,
		Address:        p.Address,
		MarketID:       p.MarketID,
		Outcome:        p.Outcome,
		Shares:         p.Shares,
		CostPaid:       p.CostPaid,
		Fee:            p.Fee,
		SessionStatus:  string(p.SessionStatus),
		SessionVersion: p.AppSessionVersion,
		Mode:           string(p.Mode),
		Timestamp:      p.Timestamp,
	}
}

type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
	Total     int                `json:"total"`
}

// ListPositions returns open positions for a user or a market. Exactly one
// of the two query parameters must be supplied.
// GET /api/positions?address=0x...  or  GET /api/positions?market=game1-winner-1
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	marketID := r.URL.Query().Get("market")

	var positions []domain.Position
	switch {
	case address != "" && marketID != "":
		writeError(w, http.StatusBadRequest, "specify either address or market, not both")
		return
	case address != "":
		positions = h.positions.ByUser(address)
	case marketID != "":
		positions = h.positions.ByMarket(marketID)
	default:
		writeError(w, http.StatusBadRequest, "missing address or market parameter")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionJSON(p))
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: out,
		Total:     len(out),
	})
}
