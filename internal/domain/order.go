package domain

import "time"

// OrderStatus tracks the peer-to-peer order lifecycle. It is a pure function
// of unfilled size and cancellation: an order with no fills is OPEN, a
// partially matched order is PARTIALLY_FILLED, a fully matched order is
// FILLED, and cancellation is terminal.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Order is a resting or incoming peer-to-peer limit order. MCPS is the
// market-clearing price per share, strictly between 0 and 1. Amount is the
// dollar notional; MaxShares = Amount / MCPS. The book maintains
// FilledShares + UnfilledShares == MaxShares at all times.
type Order struct {
	OrderID           string
	MarketID          string
	GameID            string
	UserAddress       string
	Outcome           string
	MCPS              float64
	Amount            float64
	FilledAmount      float64
	UnfilledAmount    float64
	MaxShares         float64
	FilledShares      float64
	UnfilledShares    float64
	Status            OrderStatus
	AppSessionID      string
	AppSessionVersion uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Open reports whether the order can still match.
func (o Order) Open() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// Fill is the result of crossing two complementary orders. It is ephemeral:
// reported to both participants and broadcast, but persisted only through the
// order state updates it implies.
type Fill struct {
	MarketID       string
	TakerOrderID   string
	MakerOrderID   string
	TakerAddress   string
	MakerAddress   string
	TakerOutcome   string
	MakerOutcome   string
	Shares         float64
	EffectivePrice float64 // maker's price; the resting order sets the price
	Timestamp      time.Time
}

// DepthLevel is one aggregated price level of the order book.
type DepthLevel struct {
	Price      float64
	Shares     float64
	OrderCount int
}

// Depth is the aggregated book for one market, keyed by outcome, each side
// sorted best-price-first.
type Depth struct {
	MarketID string
	Levels   map[string][]DepthLevel
}
