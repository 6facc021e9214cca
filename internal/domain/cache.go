package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest per-outcome prices of a
// market.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, outcomes []string, prices []float64, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) (map[string]float64, time.Time, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. Oracle lifecycle actions are
// wrapped in a lock keyed by market id so at most one replica mutates a
// market's status at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
