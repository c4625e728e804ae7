package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/scorechain/bchbet/internal/domain"
)

// SignalBus implements domain.SignalBus using Redis Pub/Sub. Delivery is best
// effort: a dropped message never loses a ledger record, it only delays the
// next websocket update.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription over the given channels and
// returns a read-only channel of messages. Channel names containing glob
// wildcards are subscribed as patterns. The subscription closes when the
// context is cancelled; the returned channel is closed at that point as well.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, error) {
	var plain, patterns []string
	for _, ch := range channels {
		if strings.ContainsAny(ch, "*?[") {
			patterns = append(patterns, ch)
		} else {
			plain = append(plain, ch)
		}
	}

	var pubsub *redis.PubSub
	switch {
	case len(patterns) > 0 && len(plain) == 0:
		pubsub = sb.rdb.PSubscribe(ctx, patterns...)
	case len(patterns) == 0:
		pubsub = sb.rdb.Subscribe(ctx, plain...)
	default:
		pubsub = sb.rdb.PSubscribe(ctx, patterns...)
		if err := pubsub.Subscribe(ctx, plain...); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("redis: subscribe %v: %w", plain, err)
		}
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
