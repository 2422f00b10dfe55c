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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/handler"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/memory"
	postgresRepo "github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/postgres"
	redisRepo "github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/redis"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/auth"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/config"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/eventpublisher"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/logger"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/metrics"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/postgres"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/redis"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/tracing"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).
		With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// app holds everything the process owns and must release on exit.
type app struct {
	deps      usecase.Dependencies
	checks    map[string]handler.Check
	idem      usecase.IdempotencyStore
	publisher eventpublisher.Publisher
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a, err := build(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer a.close()

	accountUC := usecase.NewAccountUseCase(a.deps)
	postingUC := usecase.NewPostingUseCase(a.deps)
	bucketUC := usecase.NewBucketUseCase(a.deps)
	reportUC := usecase.NewReportUseCase(a.deps)
	reconUC := usecase.NewReconciliationUseCase(a.deps)

	validator := dto.NewValidator()
	routerCfg := httpAdapter.RouterConfig{
		AccountHandler:   handler.NewAccountHandler(accountUC, validator),
		BucketHandler:    handler.NewBucketHandler(bucketUC, validator),
		JournalHandler:   handler.NewJournalHandler(postingUC, validator),
		LedgerHandler:    handler.NewLedgerHandler(reportUC, reconUC),
		HealthHandler:    handler.NewHealthHandler(a.checks),
		IdempotencyStore: a.idem,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		Logger:           log,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}
	if cfg.AuthEnabled {
		routerCfg.Verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, time.Hour)
		log.Info().Msg("bearer token authentication enabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	dispatcher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: a.deps.Outbox,
		Publisher:  a.publisher,
		Logger:     log,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
		Retention:  cfg.OutboxRetention,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := dispatcher.Start(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox dispatcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{
		checks:    map[string]handler.Check{},
		publisher: eventpublisher.NewLogPublisher(log),
	}
	a.deps = usecase.Dependencies{
		Metrics:        m,
		Logger:         log,
		PostingTimeout: cfg.PostingTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
		ReportCacheTTL: cfg.ReportCacheTTL,
	}

	switch cfg.StorageDriver {
	case config.StorageMemory:
		store := memory.NewStore()
		a.deps.Stores = store.Stores()
		a.deps.IDGen = postgresRepo.NewULIDGenerator()
		log.Warn().Msg("using in-memory storage; data is lost on restart")

	case config.StoragePostgres:
		if cfg.MigrationsAuto {
			if err := postgres.NewMigrator(cfg.DatabaseURL, log).Up(); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
			PingTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Str("isolation", cfg.DatabaseIsolation).Msg("connected to postgres")

		isolation, err := postgresRepo.ParseIsolationLevel(cfg.DatabaseIsolation)
		if err != nil {
			a.close()
			return nil, err
		}
		a.deps.Stores = postgresRepo.NewStores(pool, isolation)
		a.deps.IDGen = postgresRepo.NewULIDGenerator()
		a.deps.Retrier = postgresRepo.NewRetrier(log)
		a.checks["postgres"] = pool.Ping
	}

	if cfg.RedisEnabled {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		log.Info().Msg("connected to redis")

		a.deps.Cache = redisRepo.NewCache(client, m)
		a.idem = redisRepo.NewIdempotencyStore(client, m)
		a.publisher = eventpublisher.NewBreakerPublisher(
			eventpublisher.NewStreamPublisher(client, cfg.EventsStream, cfg.EventsStreamLen),
			eventpublisher.DefaultBreakerSettings("events"),
			log,
			m,
		)
		a.checks["redis"] = redisCheck(client)
	}

	return a, nil
}

func redisCheck(client *goredis.Client) handler.Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
