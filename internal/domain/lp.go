package domain

import "time"

// LPShare is one liquidity provider's cumulative holdings in the operator
// pool. Shares never goes negative.
type LPShare struct {
	Address        string
	Shares         float64
	TotalDeposited float64
	TotalWithdrawn float64
	UpdatedAt      time.Time
}

// LPEventKind distinguishes entries in the append-only LP audit log.
type LPEventKind string

const (
	LPEventDeposit    LPEventKind = "deposit"
	LPEventWithdrawal LPEventKind = "withdrawal"
)

// LPEvent is one immutable entry in the pool audit log.
type LPEvent struct {
	ID         string
	Kind       LPEventKind
	Address    string
	Amount     float64
	Shares     float64
	SharePrice float64
	PoolValue  float64 // pool value after the event
	Timestamp  time.Time
}

// PoolStats is a derived read-only view of the pool.
type PoolStats struct {
	TotalShares   float64
	PoolValue     float64
	SharePrice    float64
	HolderCount   int
	TotalDeposits float64
	TotalWithdraw float64
}

// DepositResult reports the outcome of an LP deposit.
type DepositResult struct {
	Shares     float64
	SharePrice float64
	PoolValue  float64 // after the deposit
}

// WithdrawalResult reports the outcome of an LP withdrawal.
type WithdrawalResult struct {
	Amount     float64
	SharePrice float64
	PoolValue  float64 // after the withdrawal
}

// WithdrawCheck is the withdrawal-lock policy decision.
type WithdrawCheck struct {
	Allowed bool
	Reason  string
}
