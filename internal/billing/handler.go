package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/platform/httpx"
	"github.com/guildhall/guildhall/internal/shared"
)

// Handler wires the user-facing billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes. The webhook endpoint is mounted
// separately by the router because it bypasses session middleware.
func (h *Handler) MountRoutes(r chi.Router, pm perms.Middleware) {
	r.Post("/billing/checkout", h.checkout)
	r.Post("/billing/portal", h.portal)
	r.Route("/guilds/{guildID}/billing", func(r chi.Router) {
		r.Use(pm.RequireOwner())
		r.Post("/trial", h.startTrial)
	})
}

type checkoutRequest struct {
	GuildID int64  `json:"guildId" validate:"required,gt=0"`
	UserID  int64  `json:"userId" validate:"required,gt=0"`
	PriceID string `json:"priceId" validate:"required"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "guildId, userId and priceId are required", err.Error())
		return
	}
	sess, err := h.service.StartCheckout(r.Context(), req.GuildID, req.UserID, req.PriceID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
			return
		}
		h.logger.Error("start checkout", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "checkout failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, checkoutResponse{SessionID: sess.ID, URL: sess.URL})
}

type portalRequest struct {
	GuildID int64 `json:"guildId" validate:"required,gt=0"`
}

type portalResponse struct {
	URL string `json:"url"`
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "guildId is required", err.Error())
		return
	}
	url, err := h.service.PortalURL(r.Context(), req.GuildID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		case errors.Is(err, ErrNoCustomer):
			httpx.Problem(w, http.StatusBadRequest, "guild has no billing customer", "")
		default:
			h.logger.Error("portal session", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "portal session failed", err.Error())
		}
		return
	}
	httpx.JSON(w, http.StatusOK, portalResponse{URL: url})
}

type trialResponse struct {
	TrialEndsAt time.Time `json:"trialEndsAt"`
}

func (h *Handler) startTrial(w http.ResponseWriter, r *http.Request) {
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	endsAt, err := h.service.StartTrial(r.Context(), shared.ActorID(r.Context()), guildID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		case errors.Is(err, ErrTrialUsed):
			httpx.Problem(w, http.StatusConflict, "pro trial already used", "")
		default:
			h.logger.Error("start trial", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "start trial failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, trialResponse{TrialEndsAt: endsAt})
}
