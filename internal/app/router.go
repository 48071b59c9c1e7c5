package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/guildhall/guildhall/internal/achievements"
	"github.com/guildhall/guildhall/internal/applications"
	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/billing"
	"github.com/guildhall/guildhall/internal/events"
	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/notifications"
	"github.com/guildhall/guildhall/internal/observability"
	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/shared"
	"github.com/guildhall/guildhall/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics
	PermsMW        perms.Middleware

	UsersHandler         *users.Handler
	GuildsHandler        *guilds.Handler
	EventsHandler        *events.Handler
	AchievementsHandler  *achievements.Handler
	ApplicationsHandler  *applications.Handler
	AuditHandler         *audit.Handler
	NotificationsHandler *notifications.Handler
	BillingHandler       *billing.Handler
	WebhookHandler       *billing.WebhookHandler
}

// NewRouter constructs the chi router. The Stripe webhook is mounted outside
// the session middleware; everything else shares the full stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.WebhookHandler != nil {
		r.Method(http.MethodPost, "/api/billing/webhook", params.WebhookHandler)
	}

	r.Route("/api", func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		params.UsersHandler.MountRoutes(r)
		params.GuildsHandler.MountRoutes(r, params.PermsMW)
		params.EventsHandler.MountRoutes(r, params.PermsMW)
		params.AchievementsHandler.MountRoutes(r, params.PermsMW)
		params.ApplicationsHandler.MountRoutes(r, params.PermsMW)
		params.NotificationsHandler.MountRoutes(r)
		params.BillingHandler.MountRoutes(r, params.PermsMW)

		r.Group(func(r chi.Router) {
			r.Use(params.PermsMW.Require(perms.ViewAuditLog))
			r.Get("/guilds/{guildID}/audit", params.AuditHandler.Timeline)
		})
	})

	return r
}
