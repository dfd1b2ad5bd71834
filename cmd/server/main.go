package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	syncapp "github.com/sellerbridge/backend/internal/application/sync"
	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/config"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
	marketplaceapi "github.com/sellerbridge/backend/internal/infrastructure/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/persistence"
	"github.com/sellerbridge/backend/internal/infrastructure/ratelimit"
	"github.com/sellerbridge/backend/internal/infrastructure/telemetry"
	"github.com/sellerbridge/backend/internal/interfaces/http/handler"
	"github.com/sellerbridge/backend/internal/interfaces/http/middleware"
	"github.com/sellerbridge/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting SellerBridge Sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry providers. Disabled configs yield no-op providers.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Database observability
	if cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	runRepo := persistence.NewGormSyncRunRepository(db.DB)
	catalogRepo := persistence.NewGormCatalogItemRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)

	// Remote API rate limiter, shared by both seller accounts
	apiLimiter, err := ratelimit.New(cfg.RateLimit.Classes)
	if err != nil {
		log.Fatal("Failed to build API rate limiter", zap.Error(err))
	}

	// Sync metrics (optional, only with an active meter provider)
	var syncMetrics *telemetry.SyncMetrics
	if meterProvider.IsEnabled() {
		syncMetrics, err = telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
			Meter:  meterProvider.Meter("sellerbridge.sync"),
			Logger: log,
		})
		if err != nil {
			log.Warn("Failed to initialize sync metrics", zap.Error(err))
		}
	}

	// Marketplace API clients, one per seller account
	retryCfg := marketplaceapi.RetryConfig{
		MaxAttempts: cfg.Sync.RetryAttempts,
		BaseDelay:   cfg.Sync.RetryBaseDelay,
		MaxDelay:    cfg.Sync.RetryMaxDelay,
	}
	clientOpts := []marketplaceapi.ClientOption{marketplaceapi.WithRetryConfig(retryCfg)}
	if syncMetrics != nil {
		clientOpts = append(clientOpts, marketplaceapi.WithMetrics(syncMetrics))
	}
	mainClient, err := marketplaceapi.NewClient(domain.AccountMain, cfg.Marketplace.Main, apiLimiter, log, clientOpts...)
	if err != nil {
		log.Fatal("Failed to build MAIN account client", zap.Error(err))
	}
	fbeClient, err := marketplaceapi.NewClient(domain.AccountFBE, cfg.Marketplace.FBE, apiLimiter, log, clientOpts...)
	if err != nil {
		log.Fatal("Failed to build FBE account client", zap.Error(err))
	}
	apis := map[domain.AccountType]domain.API{
		domain.AccountMain: mainClient,
		domain.AccountFBE:  fbeClient,
	}

	// Initialize application services
	orderProcessor := syncapp.NewOrderProcessor(orderRepo, cfg.Sync.OrderBatchSize)
	orchestrator := syncapp.NewOrchestrator(runRepo, catalogRepo, orderProcessor, apis, cfg.Sync, log)
	if syncMetrics != nil {
		orchestrator.SetMetrics(syncMetrics)
	}
	reaper := syncapp.NewReaper(runRepo, cfg.Sync.ReaperAge, log)
	syncService := syncapp.NewService(runRepo, catalogRepo, orchestrator, reaper, log)

	// Sweep once at startup so rows orphaned by a crash recover immediately,
	// then keep sweeping in the background.
	if reaped, err := reaper.ReapNow(ctx); err != nil {
		log.Warn("Startup reap failed", zap.Error(err))
	} else if reaped > 0 {
		log.Info("Recovered stuck sync runs from previous process", zap.Int64("count", reaped))
	}
	reaper.Start(ctx)

	// Initialize HTTP handlers
	syncHandler := handler.NewSyncHandler(syncService)
	systemHandler := handler.NewSystemHandler(db.DB)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Middleware stack, outermost first: request ID, panic recovery,
	// request logging, security headers, CORS, body limit, rate limiting,
	// tracing, metrics.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(1 << 20))
	engine.Use(middleware.RateLimit(middleware.NewRateLimiter(100, time.Minute)))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("sellerbridge.http"), meterProvider.IsEnabled()))

	// Health check endpoint (outside API versioning)
	engine.GET("/healthz", systemHandler.Healthz)

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(syncHandler).Register(systemHandler)
	r.Setup()

	// Synchronous sync requests hold the response for up to the run ceiling.
	writeTimeout := cfg.HTTP.WriteTimeout
	if writeTimeout < cfg.Sync.MaxTimeout {
		writeTimeout = cfg.Sync.MaxTimeout + 30*time.Second
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	stop()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
