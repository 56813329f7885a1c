package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-search/internal/config"
	"github.com/utafrali/storefront-search/internal/engine"
	"github.com/utafrali/storefront-search/internal/event"
	"github.com/utafrali/storefront-search/internal/filterconfig"
	handler "github.com/utafrali/storefront-search/internal/handler/http"
	"github.com/utafrali/storefront-search/internal/indexing"
	"github.com/utafrali/storefront-search/internal/searchcache"
	"github.com/utafrali/storefront-search/internal/service"
	"github.com/utafrali/storefront-search/pkg/health"
	pkgkafka "github.com/utafrali/storefront-search/pkg/kafka"
	"github.com/utafrali/storefront-search/pkg/middleware"
	"github.com/utafrali/storefront-search/pkg/pagination"
	"github.com/utafrali/storefront-search/pkg/tracing"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	monitor        *engine.Monitor
	scheduler      *indexing.Scheduler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, redisClient, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		tracerShutdown: tracerShutdown,
	}

	eng, err := newSearchEngine(cfg, logger)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.monitor = engine.NewMonitor(eng, cfg.EngineProbeInterval, logger)

	cacheManager, err := newCacheManager(cfg, redisClient, logger)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	searchCache := searchcache.New(cacheManager, searchcache.Config{
		SearchTTL: cfg.CacheSearchTTL,
		FacetsTTL: cfg.CacheFacetsTTL,
	}, logger)

	var publisher pkgkafka.Publisher = pkgkafka.NoopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
	}

	// Build the dependency graph.
	configs := filterconfig.NewEngine(
		newFilterConfigRepository(cfg, pool),
		filterconfig.Config{CacheTTL: cfg.FilterConfigCacheTTL},
		logger,
		filterconfig.WithPublisher(publisher),
		filterconfig.WithInvalidator(searchCache),
	)

	checkpoints := newCheckpointStore(cfg, pool)
	coordinator := indexing.NewCoordinator(
		newLockManager(cfg, pool, redisClient, checkpoints),
		checkpoints,
		newProductSource(cfg, logger),
		eng,
		indexing.Config{LeaseTTL: cfg.LockLeaseTTL, BatchSize: cfg.SyncBatchSize},
		logger,
		indexing.WithPublisher(publisher),
		indexing.WithInvalidator(searchCache),
	)
	a.scheduler = indexing.NewScheduler(coordinator, cfg.SyncMaxConcurrent, logger)

	searchService := service.NewSearchService(eng, a.monitor, configs, searchCache, pagination.Limits{
		DefaultPerPage: cfg.DefaultPageSize,
		MaxPerPage:     cfg.MaxPageSize,
		MaxWindow:      cfg.MaxResultWindow,
	}, logger)

	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumers = newConsumers(cfg, event.NewConsumer(a.scheduler, configs, logger), redisClient, a.dlq, logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	// A disconnected engine degrades the service rather than taking it out of
	// rotation; searches are refused with a retryable error by the monitor.
	healthHandler.RegisterDetailed("search_engine", false, a.monitor.HealthCheck)
	if pool != nil {
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("cache", searchCache.Ping)
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// HTTP router.
	router := handler.NewRouter(
		handler.RouterConfig{
			ServiceName:      serviceName,
			CORS:             middleware.DefaultCORSConfig(cfg.Environment, cfg.CORSAllowedOrigins),
			StorefrontMaxAge: cfg.StorefrontMaxAge,
			StorefrontRPS:    cfg.StorefrontRPS,
			StorefrontBurst:  cfg.StorefrontBurst,
			RequestTimeout:   cfg.RequestTimeout,
		},
		handler.NewStorefrontHandler(searchService, logger),
		handler.NewAdminHandler(configs, coordinator, a.scheduler, searchCache, logger),
		healthHandler,
		logger,
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server, the engine monitor and Kafka consumers, then
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1+len(a.consumers))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	// Start Kafka consumers in background goroutines.
	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	cancel()
	err := a.Shutdown()
	wg.Wait()
	return errors.Join(runErr, err)
}

// Shutdown gracefully stops all components. In-flight indexing batches
// finish and are checkpointed before the stores close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.scheduler.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.closeStores()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
