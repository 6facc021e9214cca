package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/orderbook"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/settlement"
)

// OrderRequest is an inbound peer-to-peer limit order.
type OrderRequest struct {
	MarketID    string
	UserAddress string
	Outcome     string
	MCPS        float64
	Amount      float64
}

// OrderResult reports the placed order plus any immediate fills.
type OrderResult struct {
	Order domain.Order
	Fills []domain.Fill
}

// OrderService runs the peer-to-peer order flow: open a settlement session
// for the order's notional, match through the book, record a position per
// filled side, persist, and broadcast.
type OrderService struct {
	engine      *orderbook.Engine
	tracker     *position.Tracker
	coordinator *settlement.Coordinator
	orders      domain.OrderStore
	bus         domain.SignalBus
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewOrderService creates an OrderService. orders may be nil for in-memory
// operation.
func NewOrderService(
	engine *orderbook.Engine,
	tracker *position.Tracker,
	coordinator *settlement.Coordinator,
	orders domain.OrderStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		engine:      engine,
		tracker:     tracker,
		coordinator: coordinator,
		orders:      orders,
		bus:         bus,
		audit:       audit,
		logger:      logger.With(slog.String("component", "order_service")),
	}
}

// PlaceOrder submits one order end to end.
func (s *OrderService) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.UserAddress == "" || req.MarketID == "" || req.Outcome == "" {
		return OrderResult{}, fmt.Errorf("order_service: missing fields: %w", domain.ErrValidation)
	}
	if req.MCPS <= 0 || req.MCPS >= 1 {
		return OrderResult{}, fmt.Errorf("order_service: mcps %g outside (0,1): %w", req.MCPS, domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return OrderResult{}, fmt.Errorf("order_service: amount %g: %w", req.Amount, domain.ErrValidation)
	}

	session, err := s.coordinator.OpenSession(ctx, req.UserAddress, req.Amount,
		fmt.Sprintf(`{"kind":"order","market_id":%q,"outcome":%q}`, req.MarketID, req.Outcome))
	if err != nil {
		return OrderResult{}, fmt.Errorf("order_service: open session: %w", err)
	}

	res, err := s.engine.PlaceOrder(req.MarketID, req.UserAddress, req.Outcome, req.MCPS, req.Amount)
	if err != nil {
		s.coordinator.AbortSession(ctx, session, req.UserAddress, req.Amount)
		return OrderResult{}, fmt.Errorf("order_service: place order: %w", err)
	}

	order := res.Order
	order.AppSessionID = session.AppSessionID
	order.AppSessionVersion = session.Version
	s.persistOrder(ctx, order)

	// A position per filled side of every fill; the matches already
	// happened in the book, so failures past this point are partial,
	// never rollbacks.
	for _, fill := range res.Fills {
		s.recordFill(ctx, fill, order)
	}

	publish(ctx, s.bus, s.logger, domain.ChannelOrders, map[string]any{
		"event":     domain.EventOrderPlaced,
		"order_id":  order.OrderID,
		"market_id": order.MarketID,
		"address":   order.UserAddress,
		"outcome":   order.Outcome,
		"mcps":      order.MCPS,
		"amount":    order.Amount,
		"status":    string(order.Status),
	})
	for _, fill := range res.Fills {
		publish(ctx, s.bus, s.logger, domain.ChannelOrders, map[string]any{
			"event":           domain.EventOrderFilled,
			"market_id":       fill.MarketID,
			"taker_order_id":  fill.TakerOrderID,
			"maker_order_id":  fill.MakerOrderID,
			"shares":          fill.Shares,
			"effective_price": fill.EffectivePrice,
			"funding_gap":     fill.Shares * (1 - fill.EffectivePrice - order.MCPS),
		})
	}
	auditLog(ctx, s.audit, s.logger, "order_placed", map[string]any{
		"order_id":  order.OrderID,
		"market_id": order.MarketID,
		"address":   order.UserAddress,
		"fills":     len(res.Fills),
	})

	return OrderResult{Order: order, Fills: res.Fills}, nil
}

// recordFill records one position for each side of a fill. Each side pays
// its own limit price per share, matching the order's amount accounting, so
// a position's cost never exceeds the notional escrowed in its session. A
// pair matched below combined probability 1 leaves a funding gap against the
// 1-unit redemption; the pool covers it at resolution.
func (s *OrderService) recordFill(ctx context.Context, fill domain.Fill, taker domain.Order) {
	makerCost := fill.Shares * fill.EffectivePrice
	takerCost := fill.Shares * taker.MCPS

	for _, leg := range []struct {
		address, outcome, orderID string
		cost                      float64
	}{
		{fill.MakerAddress, fill.MakerOutcome, fill.MakerOrderID, makerCost},
		{fill.TakerAddress, fill.TakerOutcome, fill.TakerOrderID, takerCost},
	} {
		sessionID := ""
		var version uint64
		if leg.orderID == taker.OrderID {
			sessionID = taker.AppSessionID
			version = taker.AppSessionVersion
		} else if maker, err := s.engine.GetOrder(leg.orderID); err == nil {
			sessionID = maker.AppSessionID
			version = maker.AppSessionVersion
		}

		pos, err := s.tracker.Add(ctx, domain.Position{
			Address:           leg.address,
			MarketID:          fill.MarketID,
			Outcome:           leg.outcome,
			Shares:            fill.Shares,
			CostPaid:          leg.cost,
			AppSessionID:      sessionID,
			AppSessionVersion: version,
			SessionStatus:     domain.SessionStatusOpen,
			Mode:              domain.PositionModeP2P,
			Timestamp:         fill.Timestamp,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "record fill position failed",
				slog.String("order_id", leg.orderID),
				slog.String("address", leg.address),
				slog.String("error", err.Error()),
			)
			continue
		}
		if res := s.coordinator.EnrichSession(ctx, pos); res.Err == nil {
			_, _ = s.tracker.AdvanceSession(ctx, pos.ID, res.Version, "", domain.SessionStatusOpen)
		}
	}

	// The maker's book state changed; mirror it to the store.
	if maker, err := s.engine.GetOrder(fill.MakerOrderID); err == nil {
		s.persistOrder(ctx, maker)
	}
}

// CancelOrder cancels an open order and hands the unfilled notional back
// through the settlement session (best effort).
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.engine.CancelOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel %s: %w", orderID, err)
	}
	s.persistOrder(ctx, order)

	if order.AppSessionID != "" {
		s.coordinator.AbortSession(ctx,
			domain.AppSession{AppSessionID: order.AppSessionID, Version: order.AppSessionVersion},
			order.UserAddress, order.UnfilledAmount)
	}

	publish(ctx, s.bus, s.logger, domain.ChannelOrders, map[string]any{
		"event":     domain.EventOrderCancelled,
		"order_id":  order.OrderID,
		"market_id": order.MarketID,
		"address":   order.UserAddress,
	})
	auditLog(ctx, s.audit, s.logger, "order_cancelled", map[string]any{
		"order_id":  order.OrderID,
		"market_id": order.MarketID,
	})
	return order, nil
}

// GetOrder returns one order.
func (s *OrderService) GetOrder(orderID string) (domain.Order, error) {
	return s.engine.GetOrder(orderID)
}

// Depth returns the aggregated book for a market.
func (s *OrderService) Depth(marketID string) (domain.Depth, error) {
	return s.engine.Depth(marketID)
}

// persistOrder upserts the order's latest state. The book is authoritative;
// store failures degrade to a warning.
func (s *OrderService) persistOrder(ctx context.Context, order domain.Order) {
	if s.orders == nil {
		return
	}
	if err := s.orders.Upsert(ctx, order); err != nil {
		s.logger.WarnContext(ctx, "persist order failed",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
