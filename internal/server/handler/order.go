package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/service"
)

// OrderService defines what the order handler needs from the service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, req service.OrderRequest) (service.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrder(orderID string) (domain.Order, error)
	Depth(marketID string) (domain.Depth, error)
}

// OrderHandler serves the peer-to-peer order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

type orderResponse struct {
	OrderID        string    `json:"order_id"`
	MarketID       string    `json:"market_id"`
	UserAddress    string    `json:"user_address"`
	Outcome        string    `json:"outcome"`
	MCPS           float64   `json:"mcps"`
	Amount         float64   `json:"amount"`
	FilledShares   float64   `json:"filled_shares"`
	UnfilledShares float64   `json:"unfilled_shares"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func orderJSON(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:        o.OrderID,
		MarketID:       o.MarketID,
		UserAddress:    o.UserAddress,
		Outcome:        o.Outcome,
		MCPS:           o.MCPS,
		Amount:         o.Amount,
		FilledShares:   o.FilledShares,
		UnfilledShares: o.UnfilledShares,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

type fillResponse struct {
	TakerOrderID   string  `json:"taker_order_id"`
	MakerOrderID   string  `json:"maker_order_id"`
	TakerOutcome   string  `json:"taker_outcome"`
	MakerOutcome   string  `json:"maker_outcome"`
	Shares         float64 `json:"shares"`
	EffectivePrice float64 `json:"effective_price"`
}

type placeOrderRequest struct {
	MarketID string  `json:"market_id"`
	Address  string  `json:"address"`
	Outcome  string  `json:"outcome"`
	MCPS     float64 `json:"mcps"`
	Amount   float64 `json:"amount"`
}

type placeOrderResponse struct {
	Order orderResponse  `json:"order"`
	Fills []fillResponse `json:"fills"`
}

// PlaceOrder submits a limit order to the book.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), service.OrderRequest{
		MarketID:    req.MarketID,
		UserAddress: req.Address,
		Outcome:     req.Outcome,
		MCPS:        req.MCPS,
		Amount:      req.Amount,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: place order rejected",
			slog.String("address", req.Address),
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	fills := make([]fillResponse, 0, len(result.Fills))
	for _, f := range result.Fills {
		fills = append(fills, fillResponse{
			TakerOrderID:   f.TakerOrderID,
			MakerOrderID:   f.MakerOrderID,
			TakerOutcome:   f.TakerOutcome,
			MakerOutcome:   f.MakerOutcome,
			Shares:         f.Shares,
			EffectivePrice: f.EffectivePrice,
		})
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Order: orderJSON(result.Order),
		Fills: fills,
	})
}

// GetOrder returns a single order by ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(id)
	if err != nil {
		writeError(w, statusForError(err), "order not found")
		return
	}

	writeJSON(w, http.StatusOK, orderJSON(order))
}

// CancelOrder cancels the unfilled remainder of an order.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, orderJSON(order))
}

type depthLevelResponse struct {
	Price      float64 `json:"price"`
	Shares     float64 `json:"shares"`
	OrderCount int     `json:"order_count"`
}

type depthResponse struct {
	MarketID string                          `json:"market_id"`
	Levels   map[string][]depthLevelResponse `json:"levels"`
}

// GetDepth returns the aggregated book for one market.
// GET /api/markets/{id}/depth
func (h *OrderHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	depth, err := h.orders.Depth(id)
	if err != nil {
		writeError(w, statusForError(err), "market not found")
		return
	}

	levels := make(map[string][]depthLevelResponse, len(depth.Levels))
	for outcome, side := range depth.Levels {
		out := make([]depthLevelResponse, 0, len(side))
		for _, lvl := range side {
			out = append(out, depthLevelResponse{
				Price:      lvl.Price,
				Shares:     lvl.Shares,
				OrderCount: lvl.OrderCount,
			})
		}
		levels[outcome] = out
	}

	writeJSON(w, http.StatusOK, depthResponse{
		MarketID: depth.MarketID,
		Levels:   levels,
	})
}
