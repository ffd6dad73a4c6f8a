package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/carbonledger/internal/adapter/http"
	"github.com/iho/carbonledger/internal/adapter/http/handler"
	"github.com/iho/carbonledger/internal/adapter/http/middleware"
	"github.com/iho/carbonledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/carbonledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/carbonledger/internal/adapter/repository/redis"
	"github.com/iho/carbonledger/internal/infrastructure/anchoring"
	"github.com/iho/carbonledger/internal/infrastructure/auth"
	"github.com/iho/carbonledger/internal/infrastructure/config"
	"github.com/iho/carbonledger/internal/infrastructure/eventpublisher"
	"github.com/iho/carbonledger/internal/infrastructure/logger"
	"github.com/iho/carbonledger/internal/infrastructure/metrics"
	"github.com/iho/carbonledger/internal/infrastructure/postgres"
	"github.com/iho/carbonledger/internal/infrastructure/redis"
	"github.com/iho/carbonledger/internal/infrastructure/retry"
	"github.com/iho/carbonledger/internal/infrastructure/scheduler"
	"github.com/iho/carbonledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// outboxStore is what both the relay and the events endpoint need.
type outboxStore interface {
	usecase.OutboxRepository
	handler.EventLister
}

// app is the assembled server before it starts listening.
type app struct {
	handler   http.Handler
	ledger    *usecase.LedgerService
	relay     *eventpublisher.EventPublisher
	sweeper   *scheduler.Sweeper
	limiter   *middleware.RateLimiter
	closeFunc []func()
}

func (a *app) close() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		a.closeFunc[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := buildApp(ctx, cfg, log, metrics.New())
	if err != nil {
		return err
	}
	defer a.close()

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	go func() {
		if err := a.relay.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event publisher stopped")
		}
	}()
	if err := a.sweeper.Start(bgCtx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer a.sweeper.Stop()

	if a.limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-bgCtx.Done():
					return
				case <-ticker.C:
					a.limiter.CleanupLimiters()
				}
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	cancelBackground()
	a.ledger.Wait()

	log.Info().Msg("server stopped")
	return nil
}

// buildApp wires storage, the ledger service and the HTTP surface from cfg.
func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{}
	checks := map[string]handler.Pinger{}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.OptimisticMaxAttempts

	deps := usecase.Dependencies{
		Metrics: m,
		Logger:  log,
	}

	var outbox outboxStore
	switch cfg.StoreBackend {
	case config.StoreMemory:
		store := memory.NewStore()
		deps.TxManager = store.TxManager()
		deps.Lots = store.Lots()
		deps.Audit = store.Audit()
		deps.IDGen = postgresRepo.NewULIDGenerator()
		deps.Retrier = retry.NewRetrier(retryCfg, retry.IsVersionConflict, log)
		outbox = store.Outbox()
		log.Warn().Msg("using in-memory store; data is lost on restart")

	case config.StorePostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closeFunc = append(a.closeFunc, pool.Close)
		checks["postgres"] = pool.Ping
		log.Info().Msg("connected to postgres")

		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		deps.TxManager = postgresRepo.NewTxManager(pool)
		deps.Lots = postgresRepo.NewLotRepository(pool)
		deps.Audit = postgresRepo.NewAuditRepository(pool)
		deps.IDGen = postgresRepo.NewULIDGenerator()
		deps.Retrier = retry.NewRetrier(retryCfg, postgresRepo.IsRetryable, log)
		outbox = postgresRepo.NewOutboxRepository(pool)

		if cfg.DatabaseReplicaURL != "" {
			replica, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
				DatabaseURL:    cfg.DatabaseReplicaURL,
				MaxConns:       cfg.DatabaseMaxConns,
				MinConns:       cfg.DatabaseMinConns,
				ConnectTimeout: cfg.DatabaseTimeout,
			})
			if err != nil {
				a.close()
				return nil, fmt.Errorf("failed to connect to postgres replica: %w", err)
			}
			a.closeFunc = append(a.closeFunc, replica.Close)
			checks["postgres_replica"] = replica.Ping
			deps.Reader = postgresRepo.NewLotRepository(replica)
			log.Info().Msg("connected to postgres replica")
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	deps.Outbox = outbox

	var (
		idempotency usecase.IdempotencyStore
		publisher   eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
	)
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closeFunc = append(a.closeFunc, func() { _ = client.Close() })
		checks["redis"] = redisPinger(client)
		log.Info().Msg("connected to redis")

		deps.Cache = redisRepo.NewCache(client)
		idempotency = redisRepo.NewIdempotencyStore(client)
		publisher = redisRepo.NewPublisher(client, cfg.NotificationChannel)
	}

	if cfg.AnchorURL != "" {
		deps.Anchor = anchoring.NewHTTPAnchor(cfg.AnchorURL, cfg.AnchorTimeout)
	} else {
		deps.Anchor = anchoring.NewLogAnchor(log.With().Str("component", "anchor").Logger())
	}

	a.ledger = usecase.NewLedgerService(deps, usecase.Options{
		LotIDPrefix:          cfg.LotIDPrefix,
		VerificationValidity: cfg.VerificationValidity,
		SettleGracePeriod:    cfg.SettleGracePeriod,
		MarketStatsTTL:       cfg.MarketStatsTTL,
		AnchorTimeout:        cfg.AnchorTimeout,
	})

	a.relay = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outbox,
		Publisher:  publisher,
		Logger:     log,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	sweeper, err := scheduler.NewSweeper(cfg.ExpirySweepCron, a.ledger, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.sweeper = sweeper

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		LotHandler:         handler.NewLotHandler(a.ledger, outbox),
		MarketHandler:      handler.NewMarketHandler(a.ledger),
		AdminHandler:       handler.NewAdminHandler(a.ledger),
		HealthHandler:      handler.NewHealthHandler(checks),
		IdempotencyStore:   idempotency,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		RateLimiter:        a.limiter,
		JWTManager:         jwtManager,
		TrustCallerHeaders: !cfg.AuthEnabled,
		Logger:             log,
	})

	return a, nil
}

func redisPinger(client *goredis.Client) handler.Pinger {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
