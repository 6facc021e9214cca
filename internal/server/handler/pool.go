package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/service"
)

// PoolService defines what the pool handler needs from the service layer.
type PoolService interface {
	Deposit(ctx context.Context, address string, amount float64) (domain.DepositResult, error)
	Withdraw(ctx context.Context, address string, shares float64) (domain.WithdrawalResult, error)
	Stats(ctx context.Context) (domain.PoolStats, error)
	Share(address string) (domain.LPShare, error)
	Events() []domain.LPEvent
}

// PoolHandler serves the liquidity-pool endpoints.
type PoolHandler struct {
	pool   PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(pool PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pool:   pool,
		logger: logger,
	}
}

type depositRequest struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

type depositResponse struct {
	Shares     float64 `json:"shares"`
	SharePrice float64 `json:"share_price"`
	PoolValue  float64 `json:"pool_value"`
}

// Deposit adds liquidity to the operator pool and mints shares.
// POST /api/pool/deposits
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.pool.Deposit(r.Context(), req.Address, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: deposit rejected",
			slog.String("address", req.Address),
			slog.Float64("amount", req.Amount),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, depositResponse{
		Shares:     result.Shares,
		SharePrice: result.SharePrice,
		PoolValue:  result.PoolValue,
	})
}

type withdrawRequest struct {
	Address string  `json:"address"`
	Shares  float64 `json:"shares"`
}

type withdrawResponse struct {
	Amount     float64 `json:"amount"`
	SharePrice float64 `json:"share_price"`
	PoolValue  float64 `json:"pool_value"`
}

// Withdraw burns shares and pays out the holder's slice of the pool. While
// any market is live or any position unsettled, withdrawals are refused.
// POST /api/pool/withdrawals
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.pool.Withdraw(r.Context(), req.Address, req.Shares)
	if err != nil {
		var locked *service.WithdrawalLockedError
		if errors.As(err, &locked) {
			writeError(w, http.StatusLocked, locked.Reason)
			return
		}
		h.logger.WarnContext(r.Context(), "handler: withdrawal rejected",
			slog.String("address", req.Address),
			slog.Float64("shares", req.Shares),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Amount:     result.Amount,
		SharePrice: result.SharePrice,
		PoolValue:  result.PoolValue,
	})
}

type poolStatsResponse struct {
	TotalShares   float64 `json:"total_shares"`
	PoolValue     float64 `json:"pool_value"`
	SharePrice    float64 `json:"share_price"`
	HolderCount   int     `json:"holder_count"`
	TotalDeposits float64 `json:"total_deposits"`
	TotalWithdraw float64 `json:"total_withdrawals"`
}

// GetStats returns the derived pool view.
// GET /api/pool
func (h *PoolHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: pool stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), "failed to read pool state")
		return
	}

	writeJSON(w, http.StatusOK, poolStatsResponse{
		TotalShares:   stats.TotalShares,
		PoolValue:     stats.PoolValue,
		SharePrice:    stats.SharePrice,
		HolderCount:   stats.HolderCount,
		TotalDeposits: stats.TotalDeposits,
		TotalWithdraw: stats.TotalWithdraw,
	})
}

type lpShareResponse struct {
	Address        string    `json:"address"`
	Shares         float64   `json:"shares"`
	TotalDeposited float64   `json:"total_deposited"`
	TotalWithdrawn float64   `json:"total_withdrawn"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetShare returns one holder's position in the pool.
// GET /api/pool/shares/{address}
func (h *PoolHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	share, err := h.pool.Share(address)
	if err != nil {
		writeError(w, statusForError(err), "no shares held by address")
		return
	}

	writeJSON(w, http.StatusOK, lpShareResponse{
		Address:        share.Address,
		Shares:         share.Shares,
		TotalDeposited: share.TotalDeposited,
		TotalWithdrawn: share.TotalWithdrawn,
		UpdatedAt:      share.UpdatedAt,
	})
}

type lpEventResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Address    string    `json:"address"`
	Amount     float64   `json:"amount"`
	Shares     float64   `json:"shares"`
	SharePrice float64   `json:"share_price"`
	PoolValue  float64   `json:"pool_value"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListEvents returns the append-only pool audit log, newest last.
// GET /api/pool/events
func (h *PoolHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.pool.Events()

	out := make([]lpEventResponse, 0, len(events))
	for _, evt := range events {
		out = append(out, lpEventResponse{
			ID:         evt.ID,
			Kind:       string(evt.Kind),
			Address:    evt.Address,
			Amount:     evt.Amount,
			Shares:     evt.Shares,
			SharePrice: evt.SharePrice,
			PoolValue:  evt.PoolValue,
			Timestamp:  evt.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"total":  len(out),
	})
}
