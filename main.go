package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/SYA-Group/sya-sms-dispatch/internal/cache"
	"github.com/SYA-Group/sya-sms-dispatch/internal/config"
	"github.com/SYA-Group/sya-sms-dispatch/internal/database"
	"github.com/SYA-Group/sya-sms-dispatch/internal/dispatch"
	"github.com/SYA-Group/sya-sms-dispatch/internal/gateway"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/managerapi/handlers"
	"github.com/SYA-Group/sya-sms-dispatch/internal/notification"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
	"github.com/SYA-Group/sya-sms-dispatch/internal/workers"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.Setup(os.Stdout, cfg.LogLevel)
	slog.Info("Logging initialized", slog.String("level", cfg.LogLevel))

	// --- Storage ---
	var (
		store  recipients.Store
		ledger quota.Ledger
		dbpool *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		dbpool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer dbpool.Close()
		if err := dbpool.Ping(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		slog.Info("Database connection pool established")

		dbQueries := database.New(dbpool)
		store = recipients.NewPostgresStore(dbpool, dbQueries)
		ledger = quota.NewPostgresLedger(dbpool, dbQueries)
	default:
		slog.Warn("Using in-memory store, data is lost on restart")
		store = recipients.NewMemoryStore()
		ledger = quota.NewMemoryLedger()
	}

	// --- Cache ---
	var snapshotCache cache.Cache = cache.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		rc := cache.NewRedisCache(rdb)
		if err := rc.Ping(ctx); err != nil {
			log.Fatalf("Failed to ping redis: %v", err)
		}
		snapshotCache = rc
		slog.Info("Redis cache connected", slog.String("addr", cfg.Redis.Addr))
	}
	defer snapshotCache.Close()

	// --- Notifications ---
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AMQP.URL != "" {
		an, err := notification.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
		notifier = an
		slog.Info("AMQP notifier connected", slog.String("exchange", cfg.AMQP.Exchange))
	}
	defer notifier.Close()

	// --- Gateway ---
	gw, err := gateway.New(ctx, cfg.Gateway, logger)
	if err != nil {
		log.Fatalf("Failed to initialize SMS gateway: %v", err)
	}

	// --- Dispatch ---
	svc := dispatch.NewService(dispatch.Dependencies{
		Store:    store,
		Ledger:   ledger,
		Gateway:  gw,
		Cache:    snapshotCache,
		Notifier: notifier,
	}, dispatch.Options{
		Workers:     cfg.Dispatch.Workers,
		BatchSize:   cfg.Dispatch.BatchSize,
		MaxRetries:  cfg.Dispatch.MaxRetries,
		SendTimeout: cfg.Dispatch.SendTimeout,

		DeferBackoff:      cfg.Dispatch.DeferBackoff,
		MaxDeferredPasses: cfg.Dispatch.MaxDeferredPasses,
	}, cfg.Redis.SnapshotTTL)

	workerManager := workers.NewManager(ledger, store, notifier, svc, workers.Config{
		LowQuotaInterval:   cfg.WorkerConfig.LowQuotaInterval,
		LowQuotaBatchSize:  cfg.WorkerConfig.LowQuotaBatchSize,
		StaleSweepInterval: cfg.WorkerConfig.StaleSweepInterval,
		StaleAfter:         cfg.WorkerConfig.StaleAfter,
		RunTimeout:         cfg.WorkerConfig.RunTimeout,
	})
	workerManager.Start(ctx)

	// --- HTTP API ---
	health := store.Ping
	if dbpool != nil {
		health = dbpool.Ping
	}
	router := gin.Default()
	handlers.SetupRoutes(router, handlers.Deps{Dispatch: svc, Store: store, Ledger: ledger, Health: health})

	server := &http.Server{
		Addr:         cfg.ManagerAPI.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ManagerAPI.ReadTimeout,
		WriteTimeout: cfg.ManagerAPI.WriteTimeout,
		IdleTimeout:  cfg.ManagerAPI.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	go func() {
		slog.Info("Starting manager API", slog.String("addr", cfg.ManagerAPI.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Manager API server error", slog.Any("error", err))
			cancel()
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		slog.Info("Shutdown signal received, shutting down gracefully...")
	case <-ctx.Done():
		slog.Warn("Server stopped unexpectedly, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Manager API shutdown error", slog.Any("error", err))
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("Dispatch shutdown error", slog.Any("error", err))
	}
	cancel()
	workerManager.Wait()

	if err := gw.Close(shutdownCtx); err != nil {
		slog.Warn("Gateway close error", slog.Any("error", err))
	}
	slog.Info("Server gracefully stopped")
}
