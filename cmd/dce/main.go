package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dependable-calls/dce/internal/app"
	"github.com/dependable-calls/dce/internal/auth"
	"github.com/dependable-calls/dce/internal/billing"
	"github.com/dependable-calls/dce/internal/blog"
	"github.com/dependable-calls/dce/internal/calls"
	"github.com/dependable-calls/dce/internal/campaigns"
	"github.com/dependable-calls/dce/internal/health"
	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/rbac"
	"github.com/dependable-calls/dce/internal/security"
	"github.com/dependable-calls/dce/internal/shared"
	"github.com/dependable-calls/dce/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "dce_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	rbacMiddleware := rbac.Middleware{Resolver: authService, Logger: logger}

	campaignRepo := campaigns.NewRepository(dbpool)
	campaignService := campaigns.NewService(campaignRepo, auditLogger)
	campaignHandler := campaigns.NewHandler(logger, campaignService, rbacMiddleware)

	callRepo := calls.NewRepository(dbpool)
	callService := calls.NewService(callRepo)
	callHandler := calls.NewHandler(logger, callService, rbacMiddleware)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, auditLogger, logger)
	webhookVerifier := billing.NewSignatureVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	webhookDispatcher := billing.NewDispatcher(billingRepo, idempotencyStore, metrics, logger)
	billingHandler := billing.NewHandler(logger, billingService, webhookDispatcher, webhookVerifier, rbacMiddleware)

	blogRepo := blog.NewRepository(dbpool)
	blogService := blog.NewService(blogRepo, logger)
	blogHandler := blog.NewHandler(logger, blogService, rbacMiddleware)

	securityRepo := security.NewRepository(dbpool)
	reportLimiter := security.NewReportLimiter(redisClient, cfg.CSPReportLimit, time.Minute)
	securityHandler := security.NewHandler(logger, securityRepo, reportLimiter, metrics, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	healthChecker := health.NewChecker(cfg.AppVersion, 3*time.Second,
		health.PostgresCheck(dbpool),
		health.RedisCheck(redisClient),
		health.QueueCheck(inspector),
		health.BuildCheck(cfg.AppVersion),
	)
	healthHandler := health.NewHandler(healthChecker)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		CampaignHandler: campaignHandler,
		CallHandler:     callHandler,
		BillingHandler:  billingHandler,
		BlogHandler:     blogHandler,
		SecurityHandler: securityHandler,
		HealthHandler:   healthHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
