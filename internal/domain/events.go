package domain

import "context"

// Broadcast channels. The core publishes an event on the channel matching the
// mutation it just applied, in the same order the mutations were applied.
const (
	ChannelOdds      = "odds"
	ChannelMarkets   = "markets"
	ChannelPositions = "positions"
	ChannelOrders    = "orders"
	ChannelPool      = "pool"
	ChannelBets      = "bets"
)

// Event types carried in the "event" field of broadcast payloads.
const (
	EventOddsUpdate     = "odds_update"
	EventMarketStatus   = "market_status"
	EventPositionAdded  = "position_added"
	EventOrderPlaced    = "order_placed"
	EventOrderFilled    = "order_filled"
	EventOrderCancelled = "order_cancelled"
	EventPoolUpdate     = "pool_update"
	EventBetResult      = "bet_result"
)

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. The hub's WebSocket layer
// subscribes to it and fans messages out to clients.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
