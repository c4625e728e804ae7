package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scorechain/bchbet/internal/pipeline"
	"github.com/scorechain/bchbet/internal/server"
	"github.com/scorechain/bchbet/internal/server/handler"
	"github.com/scorechain/bchbet/internal/server/ws"
)

// ServeMode runs only the HTTP + WebSocket API. The reconciliation pipeline
// is expected to run in a separate monitor-mode process sharing the same
// database and Redis.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs the rate poller, the reconciliation sweeps, and the
// optional archiver without exposing the HTTP API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process: pipeline plus HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	orch := pipeline.NewOrchestrator(
		deps.RateService,
		deps.Monitor,
		deps.Archiver,
		a.cfg.Rate.PollInterval.Duration,
		a.cfg.Pipeline.MonitorInterval.Duration,
		a.cfg.Pipeline.ArchiveInterval.Duration,
		time.Duration(a.cfg.Pipeline.ArchiveRetentionDays)*24*time.Hour,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres,
			"redis":    deps.Redis,
		}),
		Market: handler.NewMarketHandler(deps.MarketService, a.logger),
		Ledger: handler.NewLedgerHandler(deps.Ledger, deps.OutcomeStore, a.logger),
		Rate:   handler.NewRateHandler(deps.RateService, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
