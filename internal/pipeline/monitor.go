package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scorechain/bchbet/internal/domain"
	"github.com/scorechain/bchbet/internal/engine"
	"github.com/scorechain/bchbet/internal/metrics"
	"github.com/scorechain/bchbet/internal/notify"
)

// reconcileLockKey names the distributed lock held while reconciling one
// outcome. The lock is what enforces at-most-one in-flight pass per outcome
// across every process sharing the Redis instance.
func reconcileLockKey(outcomeID string) string {
	return "reconcile:" + outcomeID
}

// RateSource supplies the current exchange rate to the monitor.
type RateSource interface {
	Current(ctx context.Context) (domain.ExchangeRate, error)
}

// Monitor sweeps every monitored deposit address and reconciles incoming
// payments into ticket credits.
type Monitor struct {
	outcomes   domain.OutcomeStore
	reconciler *engine.Reconciler
	rates      RateSource
	locks      domain.LockManager
	notifier   *notify.Notifier
	lockTTL    time.Duration
	workers    int
	logger     *slog.Logger
}

// NewMonitor creates a Monitor. workers bounds how many outcomes reconcile
// concurrently; lockTTL must comfortably exceed the slowest expected pass.
// notifier may be nil when operator alerts are not wanted.
func NewMonitor(
	outcomes domain.OutcomeStore,
	reconciler *engine.Reconciler,
	rates RateSource,
	locks domain.LockManager,
	notifier *notify.Notifier,
	lockTTL time.Duration,
	workers int,
	logger *slog.Logger,
) *Monitor {
	if workers < 1 {
		workers = 1
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Monitor{
		outcomes:   outcomes,
		reconciler: reconciler,
		rates:      rates,
		locks:      locks,
		notifier:   notifier,
		lockTTL:    lockTTL,
		workers:    workers,
		logger:     logger.With("component", "monitor"),
	}
}

// RunOnce performs one sweep over all monitored outcomes. Per-outcome errors
// are logged and counted but never abort the sweep; a sweep only fails on
// context cancellation.
func (m *Monitor) RunOnce(ctx context.Context) error {
	rate, err := m.rates.Current(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRateUnavailable) {
			m.logger.Warn("no exchange rate yet, skipping sweep")
			return nil
		}
		m.logger.Error("rate lookup failed, skipping sweep", "error", err)
		return nil
	}

	outcomes, err := m.outcomes.ListMonitored(ctx)
	if err != nil {
		m.logger.Error("list monitored outcomes failed", "error", err)
		return nil
	}
	if len(outcomes) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i := range outcomes {
		outcome := outcomes[i]
		g.Go(func() error {
			m.reconcileOne(ctx, &outcome, rate)
			return ctx.Err()
		})
	}

	return g.Wait()
}

func (m *Monitor) reconcileOne(ctx context.Context, outcome *domain.Outcome, rate domain.ExchangeRate) {
	unlock, err := m.locks.Acquire(ctx, reconcileLockKey(outcome.ID), m.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// Another pass is already working this outcome.
			return
		}
		m.logger.Error("lock acquire failed",
			"outcome_id", outcome.ID,
			"error", err)
		return
	}
	defer unlock()

	start := time.Now()
	res, err := m.reconciler.Reconcile(ctx, outcome, rate)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ReconcileErrors.Inc()
		m.logger.Error("reconcile failed",
			"outcome_id", outcome.ID,
			"address", outcome.DepositAddress,
			"error", err)
		if m.notifier != nil {
			msg := fmt.Sprintf("reconcile failed for outcome %s (%s): %v",
				outcome.ID, outcome.DepositAddress, err)
			_ = m.notifier.Notify(ctx, notify.EventPipelineError, "Reconcile failed", msg)
		}
		return
	}

	metrics.TransactionsCommitted.Add(float64(res.Committed))
	metrics.TicketsCredited.Add(float64(res.TicketsCredited))
	metrics.CandidatesSkipped.WithLabelValues("duplicate").Add(float64(res.SkippedDuplicate))
	metrics.CandidatesSkipped.WithLabelValues("unconfirmed").Add(float64(res.SkippedUnconfirmed))
	metrics.CandidatesSkipped.WithLabelValues("no_output").Add(float64(res.SkippedNoOutput))
	metrics.CandidatesSkipped.WithLabelValues("dust").Add(float64(res.SkippedDust))

	if res.Committed > 0 {
		m.logger.Info("outcome reconciled",
			"outcome_id", outcome.ID,
			"committed", res.Committed,
			"tickets", res.TicketsCredited,
			"skipped", res.Skipped())
	}
}

// RunLoop sweeps on a fixed interval until the context is cancelled. The
// first sweep runs immediately.
func (m *Monitor) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := m.RunOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}
