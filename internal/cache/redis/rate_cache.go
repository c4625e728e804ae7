package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

// rateKey is the hash key holding the latest BCH/USD snapshot, with fields
// "rate" (decimal string) and "ts" (Unix nanosecond timestamp).
const rateKey = "rate:bch_usd"

// RateCache implements domain.RateCache using a Redis hash. The rate value is
// stored as a decimal string so no precision is lost on the round trip.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

// Set stores the latest exchange-rate snapshot.
func (rc *RateCache) Set(ctx context.Context, r domain.ExchangeRate) error {
	fields := map[string]interface{}{
		"rate": r.Rate.String(),
		"ts":   strconv.FormatInt(r.CapturedAt.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate: %w", err)
	}
	return nil
}

// Get retrieves the cached snapshot. It returns domain.ErrNotFound when the
// cache is cold.
func (rc *RateCache) Get(ctx context.Context) (domain.ExchangeRate, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey).Result()
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: get rate: %w", err)
	}
	if len(vals) == 0 {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate %q: %w", rateStr, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate ts %q: %w", tsStr, err)
	}

	return domain.ExchangeRate{
		Rate:       rate,
		CapturedAt: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
