package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scorechain/bchbet/internal/metrics"
	"github.com/scorechain/bchbet/internal/service"
)

// Archiver exports old records to cold storage.
type Archiver interface {
	// ArchiveBets uploads committed transactions older than the cutoff.
	ArchiveBets(ctx context.Context, before time.Time) (int64, error)
	// ArchiveRates uploads and prunes rate snapshots older than the cutoff.
	ArchiveRates(ctx context.Context, before time.Time) (int64, error)
}

// Orchestrator runs the background loops: the exchange-rate poller, the
// reconciliation monitor, and the audit archiver. Archiver may be nil when no
// blob storage is configured.
type Orchestrator struct {
	rates            *service.RateService
	monitor          *Monitor
	archiver         Archiver
	rateInterval     time.Duration
	monitorInterval  time.Duration
	archiveInterval  time.Duration
	archiveRetention time.Duration
	logger           *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	rates *service.RateService,
	monitor *Monitor,
	archiver Archiver,
	rateInterval time.Duration,
	monitorInterval time.Duration,
	archiveInterval time.Duration,
	archiveRetention time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		rates:            rates,
		monitor:          monitor,
		archiver:         archiver,
		rateInterval:     rateInterval,
		monitorInterval:  monitorInterval,
		archiveInterval:  archiveInterval,
		archiveRetention: archiveRetention,
		logger:           logger,
	}
}

// Run starts all loops as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("rate_interval", o.rateInterval),
		slog.Duration("monitor_interval", o.monitorInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting rate poller loop")
		err := o.runRatePoller(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("rate poller: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting monitor loop")
		err := o.monitor.RunLoop(ctx, o.monitorInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("monitor: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver loop")
			err := o.runArchiver(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// runRatePoller refreshes the exchange rate on a fixed interval. The first
// refresh runs immediately so the monitor has a rate to work with as soon as
// possible.
func (o *Orchestrator) runRatePoller(ctx context.Context) error {
	o.refreshRate(ctx)

	ticker := time.NewTicker(o.rateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.refreshRate(ctx)
		}
	}
}

func (o *Orchestrator) refreshRate(ctx context.Context) {
	rate, err := o.rates.Refresh(ctx)
	if err != nil {
		metrics.RateRefreshErrors.Inc()
		o.logger.Warn("rate refresh failed", slog.String("error", err.Error()))
		return
	}
	f, _ := rate.Rate.Float64()
	metrics.ExchangeRate.Set(f)
}

// runArchiver exports old ledger rows and rate snapshots on a slow interval.
// Export failures are logged and retried on the next tick.
func (o *Orchestrator) runArchiver(ctx context.Context) error {
	ticker := time.NewTicker(o.archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-o.archiveRetention)

			if n, err := o.archiver.ArchiveBets(ctx, cutoff); err != nil {
				o.logger.Error("bet archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				o.logger.Info("bets archived", slog.Int64("count", n))
			}

			if n, err := o.archiver.ArchiveRates(ctx, cutoff); err != nil {
				o.logger.Error("rate archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				o.logger.Info("rates archived", slog.Int64("count", n))
			}
		}
	}
}
