package domain

import "time"

// SessionStatus tracks the settlement-channel state attached to a position.
// It only ever advances forward: open -> settling -> settled.
type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusSettling SessionStatus = "settling"
	SessionStatusSettled  SessionStatus = "settled"
)

// rank orders session statuses so forward-only transitions can be enforced.
func (s SessionStatus) rank() int {
	switch s {
	case SessionStatusOpen:
		return 0
	case SessionStatusSettling:
		return 1
	case SessionStatusSettled:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a legal forward
// transition (staying in place is allowed, regressing is not).
func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	return next.rank() >= s.rank() && next.rank() >= 0
}

// PositionMode distinguishes how a position was created.
type PositionMode string

const (
	PositionModeLMSR PositionMode = "lmsr"
	PositionModeP2P  PositionMode = "p2p"
)

// Position records one accepted trade: shares bought on one outcome of one
// market, plus the settlement-channel reference custodying the funds.
type Position struct {
	ID                string
	Address           string
	MarketID          string
	Outcome           string
	Shares            float64 // always > 0
	CostPaid          float64 // >= 0
	Fee               float64
	AppSessionID      string
	AppSessionVersion uint64
	SessionData       string
	SessionStatus     SessionStatus
	Mode              PositionMode
	Timestamp         time.Time
}

// ResolutionOutcome classifies one position after market resolution.
type ResolutionOutcome struct {
	Position Position
	Won      bool
	Payout   float64 // shares for winners, 0 for losers
}

// ResolutionReport summarizes a terminal market resolution.
type ResolutionReport struct {
	MarketID    string
	Winner      string
	Winners     int
	Losers      int
	TotalPayout float64
	TotalLoss   float64
	Outcomes    []ResolutionOutcome
}
