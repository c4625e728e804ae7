package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// rateChannel is the signal-bus channel rate updates are published on.
const rateChannel = "rates"

// RateFetcher retrieves a fresh exchange-rate snapshot from an external feed.
type RateFetcher interface {
	FetchRate(ctx context.Context) (domain.ExchangeRate, error)
}

// rateUpdate is the JSON payload published on the rate channel.
type rateUpdate struct {
	Rate       string    `json:"rate"`
	CapturedAt time.Time `json:"captured_at"`
}

// RateService keeps the BCH/USD rate current: it polls the external feed,
// appends each snapshot to the durable history, mirrors the newest one into
// the cache, and announces updates on the signal bus.
type RateService struct {
	fetcher RateFetcher
	store   domain.RateStore
	cache   domain.RateCache
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewRateService creates a RateService. cache and bus may be nil, in which
// case reads fall through to the store and updates are not announced.
func NewRateService(
	fetcher RateFetcher,
	store domain.RateStore,
	cache domain.RateCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *RateService {
	return &RateService{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		bus:     bus,
		logger:  logger.With("component", "rate_service"),
	}
}

// Refresh fetches a fresh snapshot and records it. The durable append is the
// only step that can fail the refresh; cache and bus failures are logged and
// absorbed since the store remains correct without them.
func (s *RateService) Refresh(ctx context.Context) (domain.ExchangeRate, error) {
	rate, err := s.fetcher.FetchRate(ctx)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("rate: fetch: %w", err)
	}
	if !rate.Usable() {
		return domain.ExchangeRate{}, fmt.Errorf("rate: feed returned non-positive rate %s", rate.Rate)
	}

	if err := s.store.Append(ctx, rate); err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("rate: append: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rate); err != nil {
			s.logger.Warn("rate cache update failed", "error", err)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(rateUpdate{
			Rate:       rate.Rate.String(),
			CapturedAt: rate.CapturedAt,
		})
		if err == nil {
			if err := s.bus.Publish(ctx, rateChannel, payload); err != nil {
				s.logger.Warn("rate publish failed", "error", err)
			}
		}
	}

	s.logger.Debug("rate refreshed", "rate", rate.Rate.String())
	return rate, nil
}

// Current returns the most recent snapshot, preferring the cache and falling
// back to the store. It returns domain.ErrRateUnavailable when no snapshot
// has ever been recorded.
func (s *RateService) Current(ctx context.Context) (domain.ExchangeRate, error) {
	if s.cache != nil {
		rate, err := s.cache.Get(ctx)
		if err == nil && rate.Usable() {
			return rate, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("rate cache read failed", "error", err)
		}
	}

	rate, err := s.store.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ExchangeRate{}, domain.ErrRateUnavailable
		}
		return domain.ExchangeRate{}, fmt.Errorf("rate: latest: %w", err)
	}
	if !rate.Usable() {
		return domain.ExchangeRate{}, domain.ErrRateUnavailable
	}
	return rate, nil
}
