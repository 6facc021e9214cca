package domain

import (
	"fmt"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusPending  MarketStatus = "pending"
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is one priced event. Quantities is the LMSR state vector, one entry
// per outcome, always the same length as Outcomes. Winner is nil until the
// market is resolved.
type Market struct {
	ID         string
	GameID     string
	CategoryID string
	Status     MarketStatus
	Outcomes   []string
	Quantities []float64
	B          float64 // LMSR liquidity parameter, > 0
	Winner     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarketID builds the sequential market identifier for a (game, category)
// pair, e.g. "game42-pitch-3".
func MarketID(gameID, categoryID string, n int) string {
	return fmt.Sprintf("%s-%s-%d", gameID, categoryID, n)
}

// OutcomeIndex returns the position of outcome in the market's outcome set,
// or -1 when the outcome is not a member.
func (m Market) OutcomeIndex(outcome string) int {
	for i, o := range m.Outcomes {
		if o == outcome {
			return i
		}
	}
	return -1
}

// Live reports whether the market still accepts or holds exposure, i.e. it
// has not reached the terminal RESOLVED state.
func (m Market) Live() bool {
	return m.Status != MarketStatusResolved
}

// MarketView is the read projection returned to callers: the market plus its
// derived LMSR prices. Prices is never stored; it is recomputed from
// Quantities on every read.
type MarketView struct {
	Market
	Prices []float64
}
