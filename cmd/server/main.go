package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/smarteros/backend/internal/application/sync"
	"github.com/smarteros/backend/internal/application/webhook"
	domainmessaging "github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/infrastructure/cache"
	"github.com/smarteros/backend/internal/infrastructure/config"
	"github.com/smarteros/backend/internal/infrastructure/erp"
	"github.com/smarteros/backend/internal/infrastructure/logger"
	"github.com/smarteros/backend/internal/infrastructure/messaging"
	"github.com/smarteros/backend/internal/infrastructure/persistence"
	"github.com/smarteros/backend/internal/infrastructure/secrets"
	"github.com/smarteros/backend/internal/infrastructure/signature"
	"github.com/smarteros/backend/internal/infrastructure/storage"
	"github.com/smarteros/backend/internal/infrastructure/telemetry"
	"github.com/smarteros/backend/internal/interfaces/http/handler"
	"github.com/smarteros/backend/internal/interfaces/http/middleware"
	"github.com/smarteros/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	inboundRepo := persistence.NewGormInboundEventRepository(db.DB)
	syncRecordRepo := persistence.NewGormSyncRecordRepository(db.DB)
	envelopeRepo := persistence.NewGormEnvelopeRepository(db.DB)
	offsetRepo := persistence.NewGormConsumerOffsetRepository(db.DB)
	ticketRepo := persistence.NewGormRetryTicketRepository(db.DB)

	// Secret store client with in-process lease cache
	secretClient := secrets.NewClient(secrets.Config{
		BaseURL: cfg.Secrets.BaseURL,
		Token:   cfg.Secrets.Token,
	}, log)
	secretStore := secrets.NewLeaseCache(secretClient)

	// ERP adapter
	erpAdapter, err := erp.NewOdooAdapter(&erp.OdooConfig{
		BaseURL:        cfg.ERP.BaseURL,
		TimeoutSeconds: cfg.ERP.TimeoutSeconds,
		MaxRetries:     cfg.ERP.MaxRetries,
	}, tenantRepo, secretStore, log)
	if err != nil {
		log.Fatal("Failed to initialize ERP adapter", zap.Error(err))
	}

	// Event router over the envelope log
	eventRouter := messaging.NewRouter(envelopeRepo, log)

	// Sync engine
	engine := appsync.NewEngine(
		inboundRepo,
		syncRecordRepo,
		tenantRepo,
		ticketRepo,
		erpAdapter,
		eventRouter,
		db,
		appsync.EngineConfig{
			MaxAttempts:      cfg.Retry.MaxAttempts,
			AttemptsPerClass: cfg.Retry.AttemptsPerClass,
			BaseBackoff:      cfg.Retry.BaseBackoff,
			MaxBackoff:       cfg.Retry.MaxBackoff,
		},
		log,
	)

	// Webhook ingestion pipeline
	webhookService := webhook.NewService(tenantRepo, secretStore, signature.NewVerifier(), engine, log)

	// Dead-letter archive
	var archiver messaging.DeadLetterArchiver
	if cfg.Storage.Enabled {
		s3Archiver, err := storage.NewS3Archiver(&cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to initialize dead-letter archive", zap.Error(err))
		}
		if err := s3Archiver.EnsureBucket(rootCtx); err != nil {
			log.Fatal("Failed to prepare dead-letter bucket", zap.Error(err))
		}
		archiver = s3Archiver
		log.Info("Dead-letter archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		archiver = storage.NewStubArchiver()
		log.Warn("Dead-letter archive disabled, using in-memory stub")
	}

	// Retry manager replays failed reconciliations and owns the
	// dead-letter queue
	retryManager := messaging.NewRetryManager(
		ticketRepo,
		inboundRepo,
		tenantRepo,
		messaging.ReplayerFunc(func(ctx context.Context, eventID uuid.UUID) error {
			_, err := engine.Replay(ctx, eventID)
			return err
		}),
		archiver,
		eventRouter,
		messaging.RetryManagerConfig{
			PollInterval: cfg.Retry.PollInterval,
			BatchSize:    cfg.Retry.BatchSize,
			BaseBackoff:  cfg.Retry.BaseBackoff,
			MaxBackoff:   cfg.Retry.MaxBackoff,
		},
		log,
	)
	if cfg.Retry.Enabled {
		retryManager.Start(rootCtx)
		defer retryManager.Stop()
		log.Info("Retry manager started",
			zap.Duration("poll_interval", cfg.Retry.PollInterval),
			zap.Int("batch_size", cfg.Retry.BatchSize),
		)
	}

	// Consumer-side dedup store
	var dedupStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		if cfg.App.Env == "production" {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		log.Warn("Redis unavailable, using in-memory dedup store", zap.Error(err))
		memStore := cache.NewInMemoryIdempotencyStore()
		defer memStore.Close()
		dedupStore = memStore
	} else {
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("Error closing redis", zap.Error(err))
			}
		}()
		dedupStore = redisStore
	}

	// Consumer dispatcher
	dispatcher := messaging.NewDispatcher(envelopeRepo, offsetRepo, retryManager, messaging.DispatcherConfig{
		PollInterval:     cfg.Dispatcher.PollInterval,
		BatchSize:        cfg.Dispatcher.BatchSize,
		DeliveryAttempts: cfg.Dispatcher.DeliveryAttempts,
		RetryDelay:       cfg.Dispatcher.RetryDelay,
	}, log)

	auditPattern, err := domainmessaging.ParsePattern("*.*.*")
	if err != nil {
		log.Fatal("Failed to parse audit pattern", zap.Error(err))
	}
	auditHandler := messaging.NewIdempotentHandler(
		"audit",
		messaging.NewAuditHandler(log),
		dedupStore,
		cfg.Dispatcher.DedupTTL,
		log,
	)
	if err := dispatcher.Register(&domainmessaging.ConsumerGroup{
		Name:     "audit",
		Patterns: []domainmessaging.TopicPattern{auditPattern},
		Handler:  auditHandler,
	}); err != nil {
		log.Fatal("Failed to register audit consumer", zap.Error(err))
	}

	if cfg.Dispatcher.Enabled {
		dispatcher.Start(rootCtx)
		defer dispatcher.Stop()
		log.Info("Dispatcher started",
			zap.Duration("poll_interval", cfg.Dispatcher.PollInterval),
			zap.Int("batch_size", cfg.Dispatcher.BatchSize),
		)

		// Envelope log retention sweep
		go runRetentionSweep(rootCtx, envelopeRepo, cfg.Dispatcher.LogRetention, log)
	}

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engineHTTP := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engineHTTP.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}
	engineHTTP.Use(
		middleware.RequestID(),
		logger.RequestLog(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	systemHandler := handler.NewSystemHandler(version,
		handler.ReadinessCheck{Name: "database", Probe: func(context.Context) error { return db.Ping() }},
	)
	engineHTTP.GET("/health", systemHandler.Health)
	engineHTTP.GET("/ready", systemHandler.Ready)

	router.NewRouter(engineHTTP).
		Register(handler.NewWebhookHandler(webhookService, log)).
		Register(handler.NewDeadLetterHandler(retryManager)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engineHTTP,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// runRetentionSweep periodically deletes envelopes older than the
// retention window. Offsets are monotonic, so consumers that were past
// the deleted range are unaffected.
func runRetentionSweep(ctx context.Context, envelopes domainmessaging.EnvelopeRepository, retention time.Duration, log *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := envelopes.DeleteBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error("Envelope retention sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				log.Info("Envelope retention sweep", zap.Int64("deleted", deleted))
			}
		}
	}
}
