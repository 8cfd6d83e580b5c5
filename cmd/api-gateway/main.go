package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/entitlement-api/api/swagger"
	"github.com/noah-isme/entitlement-api/internal/bus"
	"github.com/noah-isme/entitlement-api/internal/handler"
	"github.com/noah-isme/entitlement-api/internal/middleware"
	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	"github.com/noah-isme/entitlement-api/internal/service"
	"github.com/noah-isme/entitlement-api/pkg/cache"
	"github.com/noah-isme/entitlement-api/pkg/config"
	"github.com/noah-isme/entitlement-api/pkg/database"
	"github.com/noah-isme/entitlement-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/entitlement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/entitlement-api/pkg/middleware/requestid"
	"github.com/noah-isme/entitlement-api/pkg/storage"
)

// @title Entitlement Ledger API
// @version 0.1.0
// @description Entitlement grants, holds, consumption ledger and transactional event outbox
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	store := repository.NewStore(db).WithOutboxMaxRetries(cfg.Outbox.MaxRetries)

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, balance cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	balances := service.NewBalanceService(store, cacheSvc, cfg.Cache.TTL, logr)
	grants := service.NewGrantService(store, balances, validate, logr)
	ledger := service.NewLedgerService(store, balances, validate, logr)
	holds := service.NewHoldService(store, balances, metrics, validate, logr, cfg.Holds.TTL, cfg.Holds.SweepInterval)
	consumers := service.NewConsumerService(store, ledger, holds, balances, metrics, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(bus.Config{Workers: 2, Logger: logr})
	for _, eventType := range []string{
		models.EventEntitlementGranted,
		models.EventEntitlementConsumed,
		models.EventEntitlementRefunded,
		models.EventEntitlementAdjusted,
		models.EventHoldCreated,
		models.EventHoldReleased,
		models.EventHoldCancelled,
		models.EventHoldExpired,
	} {
		eventBus.Subscribe(eventType, func(ctx context.Context, event models.OutboxEvent) error {
			logr.Info("domain event published",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.String("aggregate_id", event.AggregateID))
			return nil
		})
	}
	eventBus.Start(rootCtx)
	defer eventBus.Stop()

	publisher := service.NewOutboxPublisher(store, eventBus, metrics, logr, service.PublisherConfig{
		PollInterval:  cfg.Outbox.PollInterval,
		BatchSize:     cfg.Outbox.BatchSize,
		RetryWindow:   cfg.Outbox.RetryWindow,
		RetentionDays: cfg.Outbox.RetentionDays,
		LockKey:       cfg.Outbox.LockKey,
	})
	publisher.Start(rootCtx)
	defer publisher.Stop()

	holds.StartSweeper(rootCtx)
	defer holds.StopSweeper()

	var statements *service.StatementService
	if cfg.Statements.Enabled {
		files, err := storage.NewLocalStorage(cfg.Statements.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare statement storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Statements.SignedURLSecret, cfg.Statements.SignedURLTTL)
		exporter := service.NewStatementExportService(store, files, signer, service.StatementExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Statements.SignedURLTTL,
		}, logr, nil, nil)
		statements = service.NewStatementService(store, exporter, validate, logr, service.StatementServiceConfig{
			Workers:         cfg.Statements.WorkerConcurrency,
			MaxRetries:      cfg.Statements.WorkerRetries,
			ResultTTL:       cfg.Statements.SignedURLTTL,
			CleanupInterval: time.Hour,
		})
		statements.Start(rootCtx)
		defer statements.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	balanceHandler := handler.NewBalanceHandler(balances)
	grantHandler := handler.NewGrantHandler(grants)
	ledgerHandler := handler.NewLedgerHandler(ledger)
	holdHandler := handler.NewHoldHandler(holds)
	eventHandler := handler.NewEventHandler(consumers)
	outboxHandler := handler.NewOutboxHandler(publisher)

	api := r.Group(cfg.APIPrefix)
	opsAuth := middleware.OpsAuth(cfg.JWT.Secret)

	api.GET("/students/:studentId/balance", balanceHandler.GetBalance)
	api.GET("/students/:studentId/grants", grantHandler.ListByStudent)
	api.GET("/students/:studentId/ledger", ledgerHandler.ListByStudent)
	api.POST("/grants", grantHandler.Create)

	api.GET("/ledger/:id", ledgerHandler.Get)
	api.POST("/ledger/consumptions", ledgerHandler.RecordConsumption)
	api.POST("/ledger/refunds", ledgerHandler.RecordRefund)
	api.POST("/ledger/adjustments", opsAuth, ledgerHandler.RecordAdjustment)

	api.POST("/holds", holdHandler.Create)
	api.GET("/holds/:id", holdHandler.Get)
	api.PATCH("/holds/:id/booking", holdHandler.BindBooking)
	api.POST("/holds/:id/cancel", holdHandler.Cancel)

	api.POST("/events", opsAuth, eventHandler.Receive)

	ops := api.Group("/ops", opsAuth, middleware.RequireRole("ops", "admin"))
	ops.POST("/outbox/process", outboxHandler.Process)
	ops.POST("/outbox/retry-failed", outboxHandler.RetryFailed)
	ops.POST("/outbox/cleanup", outboxHandler.Cleanup)

	if statements != nil {
		statementHandler := handler.NewStatementHandler(statements)
		api.POST("/students/:studentId/statements", opsAuth, statementHandler.Create)
		api.GET("/statements/download", statementHandler.Download)
		api.GET("/statements/:id", opsAuth, statementHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
