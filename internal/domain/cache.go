package domain

import (
	"context"
	"io"
	"time"
)

// RateCache holds the latest exchange-rate snapshot for fast reads. It is a
// mirror of the newest RateStore row, not an authority: the reconciliation
// engine falls back to the store when the cache is cold.
type RateCache interface {
	Set(ctx context.Context, r ExchangeRate) error
	// Get returns the cached snapshot, or ErrNotFound when the cache is cold.
	Get(ctx context.Context) (ExchangeRate, error)
}

// LockManager provides distributed locking. The monitor loop uses it to
// guarantee at most one in-flight reconciliation per outcome.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out for transaction and rate events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// BusMessage is a single message received from the signal bus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// RateLimiter applies request throttling keyed by an arbitrary string,
// typically a client IP.
type RateLimiter interface {
	// Allow reports whether another request under key fits within limit
	// requests per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
