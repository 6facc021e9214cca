package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrValidation         = errors.New("invalid request parameters")
	ErrInvalidTransition  = errors.New("invalid market state transition")
	ErrInvalidOutcome     = errors.New("outcome not in market outcome set")
	ErrMarketNotOpen      = errors.New("market not open")
	ErrAlreadyFilled      = errors.New("order already filled or cancelled")
	ErrInsufficientShares = errors.New("insufficient LP shares")
	ErrWithdrawalsLocked  = errors.New("withdrawals locked")
	ErrLedgerUnavailable  = errors.New("ledger service unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrContextDone        = errors.New("context cancelled")
	ErrLockHeld           = errors.New("lock already held")
)
