package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dependable-calls/dce/internal/app"
	"github.com/dependable-calls/dce/internal/billing"
	"github.com/dependable-calls/dce/internal/security"
	"github.com/dependable-calls/dce/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	if err := godotenv.Load(); err != nil {
		slog.Default().Debug("no .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, nil, logger)
	securityRepo := security.NewRepository(pool)

	secretScanJob := jobs.NewSecretScanJob(cfg.ScanRoot, logger, nil)
	cspCleanupJob := jobs.NewCSPCleanupJob(securityRepo, cfg.CSPRetention, logger, nil)
	payoutReconcileJob := jobs.NewPayoutReconcileJob(billingService, logger, nil)
	perfSnapshotJob := jobs.NewPerfSnapshotJob(pool, redisClient, logger, nil)

	secretScanTask, err := jobs.NewSecretScanTask(jobs.SecretScanPayload{Root: cfg.ScanRoot})
	if err != nil {
		logger.Error("build secret scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cspCleanupTask, err := jobs.NewCSPCleanupTask(jobs.CSPCleanupPayload{})
	if err != nil {
		logger.Error("build csp cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	payoutReconcileTask, err := jobs.NewPayoutReconcileTask(jobs.PayoutReconcilePayload{StuckAfterHours: 24})
	if err != nil {
		logger.Error("build payout reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSecretScan, Handler: secretScanJob.Handle},
			{Type: jobs.TaskCSPCleanup, Handler: cspCleanupJob.Handle},
			{Type: jobs.TaskPayoutReconcile, Handler: payoutReconcileJob.Handle},
			{Type: jobs.TaskPerfSnapshot, Handler: perfSnapshotJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: secretScanTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "30 4 * * *", Task: cspCleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: payoutReconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/5 * * * *", Task: jobs.NewPerfSnapshotTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
