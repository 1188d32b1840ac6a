package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-store/meridian/internal/app"
	"github.com/meridian-store/meridian/internal/barcode"
	"github.com/meridian-store/meridian/internal/catalog"
	"github.com/meridian-store/meridian/internal/observability"
	"github.com/meridian-store/meridian/internal/orders"
	"github.com/meridian-store/meridian/internal/platform/cache"
	"github.com/meridian-store/meridian/internal/platform/db"
	"github.com/meridian-store/meridian/internal/shared"
	"github.com/meridian-store/meridian/internal/stock"
	"github.com/meridian-store/meridian/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	renderer := barcode.NewRenderer(cfg.RendererURL)
	if err := renderer.Ping(ctx); err != nil {
		logger.Warn("renderer ping", slog.Any("error", err))
	}

	// Worker-side allocation does not enqueue renders for itself.
	allocator := barcode.NewAllocator(barcode.NewPGStore(pool), nil, logger, cfg.AllocatorAttempts)

	availabilityCache := catalog.NewAvailabilityCache(redisClient, cfg.AvailabilityTTL, logger)
	catalogRepo := catalog.NewRepository(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, metrics, availabilityCache, logger)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, stockService, catalogRepo, idempotencyStore, allocator, metrics, auditLogger, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deps: jobs.Deps{
			Stock:         stockService,
			Orders:        ordersService,
			Renderer:      renderer,
			Idempotency:   idempotencyStore,
			BarcodeDir:    cfg.BarcodeDir,
			RecoveryGrace: cfg.RecoveryGrace,
			KeyRetention:  cfg.KeyRetention,
			Logger:        logger,
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: jobs.NewOrphanSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewLedgerVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
