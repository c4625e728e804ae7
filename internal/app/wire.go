package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/scorechain/bchbet/internal/blob/s3"
	"github.com/scorechain/bchbet/internal/cache/redis"
	"github.com/scorechain/bchbet/internal/config"
	"github.com/scorechain/bchbet/internal/domain"
	"github.com/scorechain/bchbet/internal/engine"
	"github.com/scorechain/bchbet/internal/notify"
	"github.com/scorechain/bchbet/internal/pipeline"
	"github.com/scorechain/bchbet/internal/platform/blockchair"
	"github.com/scorechain/bchbet/internal/platform/chaingraph"
	"github.com/scorechain/bchbet/internal/platform/coingecko"
	"github.com/scorechain/bchbet/internal/service"
	"github.com/scorechain/bchbet/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Clients (kept for health checks)
	Postgres *postgres.Client
	Redis    *redis.Client

	// Stores
	MatchStore   domain.MatchStore
	OutcomeStore domain.OutcomeStore
	Ledger       domain.Ledger
	RateStore    domain.RateStore

	// Caches
	RateCache   domain.RateCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Services
	MarketService *service.MarketService
	RateService   *service.RateService

	// Pipeline
	Reconciler *engine.Reconciler
	Monitor    *pipeline.Monitor
	Archiver   pipeline.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MatchStore = postgres.NewMatchStore(pool)
	deps.OutcomeStore = postgres.NewOutcomeStore(pool)
	ledger := postgres.NewLedger(pool)
	deps.Ledger = ledger
	rateStore := postgres.NewRateStore(pool)
	deps.RateStore = rateStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	deps.RateCache = redis.NewRateCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Rate oracle ---
	rateFetcher := coingecko.NewClient(cfg.Rate.BaseURL, cfg.Rate.Timeout.Duration)
	deps.RateService = service.NewRateService(
		rateFetcher, rateStore, deps.RateCache, deps.SignalBus, logger,
	)

	// --- Market economics ---
	ticketPrice, err := decimal.NewFromString(cfg.Market.TicketPriceUSD)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ticket_price_usd: %w", err)
	}
	prizePool, err := decimal.NewFromString(cfg.Market.PrizePoolUSD)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: prize_pool_usd: %w", err)
	}
	deps.MarketService = service.NewMarketService(
		deps.MatchStore, deps.OutcomeStore, ledger, deps.RateService, prizePool, deps.Notifier, logger,
	)

	// --- Reconciliation pipeline ---
	lister, err := newIndexerAdapter(cfg.Indexer)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sink := pipeline.NewBusPublisher(deps.SignalBus, deps.Notifier, logger)
	deps.Reconciler = engine.NewReconciler(
		lister, ledger, deps.OutcomeStore, sink, ticketPrice, logger,
	)
	deps.Monitor = pipeline.NewMonitor(
		deps.OutcomeStore,
		deps.Reconciler,
		deps.RateService,
		deps.LockManager,
		deps.Notifier,
		cfg.Pipeline.LockTTL.Duration,
		cfg.Pipeline.Workers,
		logger,
	)

	// --- S3 archiver (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), ledger, rateStore)
	}

	return deps, cleanup, nil
}

// newIndexerAdapter selects the chain indexer backend from configuration.
func newIndexerAdapter(cfg config.IndexerConfig) (engine.CandidateLister, error) {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch strings.ToLower(cfg.Backend) {
	case "blockchair":
		return blockchair.NewClient(cfg.BaseURL, cfg.APIKey, timeout), nil
	case "chaingraph":
		return chaingraph.NewClient(cfg.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("wire: unknown indexer backend %q", cfg.Backend)
	}
}
