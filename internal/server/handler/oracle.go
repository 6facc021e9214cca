package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/service"
)

// OracleService defines the lifecycle operations the oracle handler needs
// from the service layer.
type OracleService interface {
	CreateMarket(ctx context.Context, gameID, categoryID string, outcomes []string, b float64) (domain.MarketView, error)
	OpenMarket(ctx context.Context, id string) (domain.MarketView, error)
	CloseMarket(ctx context.Context, id string) (domain.MarketView, error)
	ResolveMarket(ctx context.Context, id, outcome string) (service.ResolutionResult, error)
	ResolutionArchive(ctx context.Context, id string) (io.ReadCloser, error)
	ListResolutionArchives(ctx context.Context) ([]domain.BlobInfo, error)
	FundAccounts(ctx context.Context, destinations []string, amount float64) (int, error)
}

// OracleHandler serves the operator-only market lifecycle endpoints.
type OracleHandler struct {
	oracle   OracleService
	defaultB float64
	logger   *slog.Logger
}

// NewOracleHandler creates an OracleHandler. defaultB is the liquidity
// parameter used when a create request omits one.
func NewOracleHandler(oracle OracleService, defaultB float64, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle:   oracle,
		defaultB: defaultB,
		logger:   logger,
	}
}

type createMarketRequest struct {
	GameID     string   `json:"game_id"`
	CategoryID string   `json:"category_id"`
	Outcomes   []string `json:"outcomes"`
	B          float64  `json:"liquidity_b"`
}

// CreateMarket registers a new pending market.
// POST /api/oracle/markets
func (h *OracleHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.B == 0 {
		req.B = h.defaultB
	}

	mv, err := h.oracle.CreateMarket(r.Context(), req.GameID, req.CategoryID, req.Outcomes, req.B)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create market rejected",
			slog.String("game_id", req.GameID),
			slog.String("category_id", req.CategoryID),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, marketJSON(mv))
}

// OpenMarket transitions a pending market to open.
// POST /api/oracle/markets/{id}/open
func (h *OracleHandler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	mv, err := h.oracle.OpenMarket(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, marketJSON(mv))
}

// CloseMarket transitions an open market to closed, cancelling any resting
// orders.
// POST /api/oracle/markets/{id}/close
func (h *OracleHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	mv, err := h.oracle.CloseMarket(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, marketJSON(mv))
}

type resolveMarketRequest struct {
	Outcome string `json:"outcome"`
}

// resolveMarketResponse reports the resolution along with settlement counts.
type resolveMarketResponse struct {
	Market      marketResponse `json:"market"`
	Winner      string         `json:"winner"`
	Winners     int            `json:"winners"`
	Losers      int            `json:"losers"`
	TotalPayout float64        `json:"total_payout"`
	Settled     int            `json:"settled"`
	Failed      int            `json:"failed"`
}

// ResolveMarket resolves a closed market to its winning outcome and settles
// every open position.
// POST /api/oracle/markets/{id}/resolve
func (h *OracleHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "missing outcome")
		return
	}

	result, err := h.oracle.ResolveMarket(r.Context(), id, req.Outcome)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
			slog.String("market_id", id),
			slog.String("outcome", req.Outcome),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resolveMarketResponse{
		Market:      marketJSON(result.Market),
		Winner:      result.Report.Winner,
		Winners:     result.Report.Winners,
		Losers:      result.Report.Losers,
		TotalPayout: result.Report.TotalPayout,
		Settled:     result.Settled,
		Failed:      result.Failed,
	})
}

// GetResolutionArchive streams a market's archived resolution record
// (JSONL, one line per settled position).
// GET /api/oracle/markets/{id}/archive
func (h *OracleHandler) GetResolutionArchive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	rc, err := h.oracle.ResolutionArchive(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "archive not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream archive failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// archiveInfoResponse is one archived resolution in the list endpoint.
type archiveInfoResponse struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type listArchivesResponse struct {
	Archives []archiveInfoResponse `json:"archives"`
	Total    int                   `json:"total"`
}

// ListResolutionArchives lists every archived resolution record.
// GET /api/oracle/archives
func (h *OracleHandler) ListResolutionArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.oracle.ListResolutionArchives(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	out := make([]archiveInfoResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveInfoResponse{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: out, Total: len(out)})
}

type fundRequest struct {
	Addresses []string `json:"addresses"`
	Amount    float64  `json:"amount"`
}

// fundResponse reports a batch funding run. A partial failure keeps the 200
// and carries the first error alongside the completed count.
type fundResponse struct {
	Requested int    `json:"requested"`
	Funded    int    `json:"funded"`
	Error     string `json:"error,omitempty"`
}

// FundAccounts transfers a fixed amount to each listed address.
// POST /api/oracle/fund
func (h *OracleHandler) FundAccounts(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	funded, err := h.oracle.FundAccounts(r.Context(), req.Addresses, req.Amount)
	if err != nil && funded == 0 {
		writeError(w, statusForError(err), err.Error())
		return
	}

	resp := fundResponse{Requested: len(req.Addresses), Funded: funded}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
