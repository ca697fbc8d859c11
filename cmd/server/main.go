package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/fintrack/backend/docs"
	appbanking "github.com/fintrack/backend/internal/application/banking"
	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
	"github.com/fintrack/backend/internal/infrastructure/auth"
	"github.com/fintrack/backend/internal/infrastructure/config"
	"github.com/fintrack/backend/internal/infrastructure/event"
	"github.com/fintrack/backend/internal/infrastructure/lock"
	"github.com/fintrack/backend/internal/infrastructure/logger"
	"github.com/fintrack/backend/internal/infrastructure/persistence"
	"github.com/fintrack/backend/internal/infrastructure/providers"
	"github.com/fintrack/backend/internal/infrastructure/scheduler"
	"github.com/fintrack/backend/internal/infrastructure/telemetry"
	"github.com/fintrack/backend/internal/interfaces/http/handler"
	"github.com/fintrack/backend/internal/interfaces/http/middleware"
	"github.com/fintrack/backend/internal/interfaces/http/router"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//	@title			FinTrack Banking API
//	@version		1.0
//	@description	Bank connection and transaction sync service for the FinTrack personal finance app

//	@contact.name	API Support
//	@contact.url	https://github.com/fintrack/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting FinTrack Banking Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry first so the otelgorm plugin picks up the global providers
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
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
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
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := logProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// From here on every log record also ships to the collector
	if logProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logProvider,
			Level:          logger.ParseLevel(cfg.Log.Level),
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	// Database
	gormLogOpts := []logger.GormLoggerOption{
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	}
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormLogOpts = append(gormLogOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormLogOpts...)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Sync lock: Redis-backed lease when Redis is configured, in-process
	// fallback for single-node deployments
	var syncLock banking.SyncLock
	if cfg.Redis.Host != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		syncLock = lock.NewRedisSyncLock(redisClient, "fintrack:sync")
		log.Info("Redis sync lock enabled", zap.String("addr", cfg.Redis.RedisAddr()))
	} else {
		syncLock = lock.NewInMemorySyncLock()
		log.Warn("Redis not configured, using in-process sync lock")
	}

	// Repositories
	connRepo := persistence.NewGormConnectionRepository(db.DB)
	linkedRepo := persistence.NewGormLinkedAccountRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	refRepo := persistence.NewGormExternalTransactionRefRepository(db.DB)
	uow := persistence.NewGormUnitOfWork(db.DB)

	// Provider adapters
	registry, err := providers.NewRegistryFromConfig(&cfg.Banking)
	if err != nil {
		log.Fatal("Failed to build provider registry", zap.Error(err))
	}
	if len(registry.List()) == 0 {
		log.Warn("No banking providers configured; link attempts will fail")
	}

	// Application services
	linkService := appbanking.NewLinkService(connRepo, linkedRepo, syncLogRepo, registry, log)
	orchestrator := appbanking.NewSyncOrchestrator(
		connRepo, linkedRepo, syncLogRepo, refRepo, registry, syncLock, uow,
		appbanking.SyncConfig{
			Timeout:         cfg.Sync.Timeout,
			LockTTL:         cfg.Sync.LockTTL,
			LookbackOverlap: cfg.Sync.LookbackOverlap,
			InitialLookback: cfg.Sync.InitialLookback,
		}, log)
	sweeper := appbanking.NewConnectionSweeper(connRepo, appbanking.SweepConfig{
		PendingWindow: cfg.Sweep.PendingWindow,
		BatchSize:     cfg.Sweep.BatchSize,
	}, log)

	// Sync metrics
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider.Meter("fintrack/banking"))
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	orchestrator.SetMetrics(syncMetrics)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(&event.HandlerFunc{
		Types: []string{banking.EventTypeSyncCompleted},
		Fn: func(ctx context.Context, evt shared.DomainEvent) error {
			log.Info("sync completed",
				zap.String("connection_id", evt.AggregateID().String()))
			return nil
		},
	})
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	linkService.SetEventPublisher(eventBus)
	orchestrator.SetEventPublisher(eventBus)
	sweeper.SetEventPublisher(eventBus)

	// Background scheduler
	if cfg.Scheduler.Enabled {
		schedulerConfig := scheduler.DefaultConfig()
		schedulerConfig.SweepInterval = cfg.Scheduler.SweepInterval
		schedulerConfig.SyncInterval = cfg.Scheduler.SyncInterval

		syncScheduler, err := scheduler.NewSyncScheduler(schedulerConfig, orchestrator, sweeper, connRepo, log)
		if err != nil {
			log.Fatal("Failed to build sync scheduler", zap.Error(err))
		}
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			if err := syncScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()
		log.Info("Sync scheduler started",
			zap.Duration("sweep_interval", schedulerConfig.SweepInterval),
			zap.Duration("sync_interval", schedulerConfig.SyncInterval),
		)
	}

	// HTTP layer
	jwtService := auth.NewJWTService(cfg.JWT)

	bankingHandler := handler.NewBankingHandler(linkService, orchestrator, registry)
	systemHandler := handler.NewSystemHandler(db.DB)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORS(corsConfig))

	// Health check outside API versioning so probes skip authentication
	engine.GET("/health", systemHandler.Health)

	// Swagger documentation, gated by the swagger config
	swaggerGate := middleware.SwaggerProtection(middleware.SwaggerConfig{
		Enabled:     cfg.Swagger.Enabled,
		RequireAuth: cfg.Swagger.RequireAuth,
		AllowedIPs:  cfg.Swagger.AllowedIPs,
	}, middleware.JWTAuthMiddleware(jwtService))
	engine.GET("/swagger/*any", swaggerGate, ginSwagger.WrapHandler(swaggerFiles.Handler))

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	r.Register(router.NewBankingRoutes(bankingHandler))
	r.Register(router.NewSystemRoutes(systemHandler))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
