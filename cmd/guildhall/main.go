package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/achievements"
	"github.com/guildhall/guildhall/internal/app"
	"github.com/guildhall/guildhall/internal/applications"
	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/billing"
	"github.com/guildhall/guildhall/internal/events"
	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/notifications"
	"github.com/guildhall/guildhall/internal/observability"
	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/platform/cache"
	"github.com/guildhall/guildhall/internal/shared"
	"github.com/guildhall/guildhall/internal/users"
	"github.com/guildhall/guildhall/jobs"
	"github.com/hibiken/asynq"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "guildhall_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	recorder := audit.NewRecorder(auditRepo, logger)
	auditHandler := audit.NewHandler(logger, auditService)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, sessionManager)

	guildsRepo := guilds.NewRepository(dbpool)
	guildsService := guilds.NewService(guildsRepo, recorder)
	guildsHandler := guilds.NewHandler(logger, guildsService)

	permsMW := perms.Middleware{Access: guildsRepo, Logger: logger}

	notificationsRepo := notifications.NewRepository(dbpool)
	notificationsService := notifications.NewService(notificationsRepo, jobClient, logger)
	notificationsHandler := notifications.NewHandler(logger, notificationsService)

	eventsRepo := events.NewRepository(dbpool)
	eventsService := events.NewService(eventsRepo, guildsService, notificationsService, recorder)
	eventsHandler := events.NewHandler(logger, eventsService)

	achievementsRepo := achievements.NewRepository(dbpool)
	achievementsService := achievements.NewService(achievementsRepo, guildsService, recorder)
	achievementsHandler := achievements.NewHandler(logger, achievementsService)

	applicationsRepo := applications.NewRepository(dbpool)
	applicationsService := applications.NewService(applicationsRepo, guildsService, notificationsService, recorder)
	applicationsHandler := applications.NewHandler(logger, applicationsService)

	stripeProvider := billing.NewStripeProvider(cfg.StripeAPIKey)
	billingService := billing.NewService(guildsRepo, stripeProvider, recorder, billing.ServiceConfig{
		SuccessURL:      cfg.CheckoutSuccessURL,
		CancelURL:       cfg.CheckoutCancelURL,
		PortalReturnURL: cfg.StripePortalURL,
		TrialLength:     cfg.ProTrialLength,
	})
	billingHandler := billing.NewHandler(logger, billingService)
	reconciler := billing.NewReconciler(guildsRepo, stripeProvider, logger)
	webhookHandler := billing.NewWebhookHandler(cfg.StripeWebhookSecret, reconciler, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		Metrics:              metrics,
		PermsMW:              permsMW,
		UsersHandler:         usersHandler,
		GuildsHandler:        guildsHandler,
		EventsHandler:        eventsHandler,
		AchievementsHandler:  achievementsHandler,
		ApplicationsHandler:  applicationsHandler,
		AuditHandler:         auditHandler,
		NotificationsHandler: notificationsHandler,
		BillingHandler:       billingHandler,
		WebhookHandler:       webhookHandler,
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
