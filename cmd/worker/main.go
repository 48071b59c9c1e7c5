package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/app"
	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/guilds"
	jobmetrics "github.com/guildhall/guildhall/internal/jobs"
	"github.com/guildhall/guildhall/internal/notifications"
	"github.com/guildhall/guildhall/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
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

	auditRepo := audit.NewRepository(pool)
	guildsRepo := guilds.NewRepository(pool)
	notificationsRepo := notifications.NewRepository(pool)
	notificationsService := notifications.NewService(notificationsRepo, nil, logger)
	metrics := jobmetrics.NewMetrics(nil)

	cleanupTask, err := jobs.NewAuditCleanupTask(jobs.AuditCleanupPayload{
		RetainHours: int(cfg.AuditRetention.Hours()),
	})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifyDispatch, Handler: jobs.NotifyDispatchHandler(notificationsService, logger, metrics)},
			{Type: jobs.TaskAuditCleanup, Handler: jobs.AuditCleanupHandler(auditRepo, logger, metrics)},
			{Type: jobs.TaskTrialSweep, Handler: jobs.TrialSweepHandler(guildsRepo, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewTrialSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
