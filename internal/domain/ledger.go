package domain

import (
	"context"
	"math"
)

// MicroUnit is the smallest denomination of the settlement asset. All amounts
// crossing the ledger boundary are integer micro-units; the core works in
// float dollars and converts at this boundary only.
const MicroUnit = 1_000_000

// ToMicro converts a dollar amount to integer micro-units, rounding to the
// nearest unit.
func ToMicro(amount float64) int64 {
	return int64(math.Round(amount * MicroUnit))
}

// FromMicro converts integer micro-units back to a dollar amount.
func FromMicro(units int64) float64 {
	return float64(units) / MicroUnit
}

// LedgerAllocation assigns micro-units of an asset to one participant of an
// app session.
type LedgerAllocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
}

// AppSession references an off-chain settlement channel held open between a
// trader and the operator.
type AppSession struct {
	AppSessionID string
	Version      uint64
	Status       string
}

// LedgerClient is the contract with the external off-chain settlement
// service. Implementations own authentication, transport, and retries; the
// core treats every call as a plain request/response with a context timeout.
type LedgerClient interface {
	GetBalance(ctx context.Context, asset string) (int64, error)
	CreateAppSession(ctx context.Context, participants []string, allocations []LedgerAllocation, sessionData string) (AppSession, error)
	SubmitAppState(ctx context.Context, appSessionID, intent string, version uint64, allocations []LedgerAllocation, sessionData string) (uint64, error)
	CloseAppSession(ctx context.Context, appSessionID string, allocations []LedgerAllocation, sessionData string) error
	Transfer(ctx context.Context, destination, asset string, amount int64) error
}
