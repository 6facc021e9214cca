package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openodds/markethub/internal/domain"
)

// priceTTL bounds staleness: the market manager is authoritative, the cache
// only serves hot read paths, so entries expire rather than linger.
const priceTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// prices are stored at "prices:{marketID}" with one field per outcome plus a
// "ts" field (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func pricesKey(marketID string) string {
	return "prices:" + marketID
}

// SetPrices stores the full outcome price vector of one market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID string, outcomes []string, prices []float64, ts time.Time) error {
	if len(outcomes) != len(prices) {
		return fmt.Errorf("redis: set prices %s: %d outcomes vs %d prices: %w",
			marketID, len(outcomes), len(prices), domain.ErrValidation)
	}

	key := pricesKey(marketID)
	fields := make(map[string]interface{}, len(outcomes)+1)
	for i, outcome := range outcomes {
		fields[outcome] = strconv.FormatFloat(prices[i], 'f', -1, 64)
	}
	fields["ts"] = strconv.FormatInt(ts.UnixNano(), 10)

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves a market's prices by outcome. It returns
// domain.ErrNotFound when the market has no cached prices.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) (map[string]float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pricesKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, fmt.Errorf("redis: prices %s: %w", marketID, domain.ErrNotFound)
	}

	var ts time.Time
	prices := make(map[string]float64, len(vals))
	for field, raw := range vals {
		if field == "ts" {
			nanos, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("redis: parse price ts for %s: %w", marketID, err)
			}
			ts = time.Unix(0, nanos)
			continue
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", marketID, field, err)
		}
		prices[field] = price
	}
	return prices, ts, nil
}

// Invalidate drops a market's cached prices.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, pricesKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
