package applications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/platform/httpx"
	"github.com/guildhall/guildhall/internal/shared"
)

// Handler wires HTTP endpoints for recruitment.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers application routes. Submitting is open to any
// signed-in user; reviewing is permission gated.
func (h *Handler) MountRoutes(r chi.Router, pm perms.Middleware) {
	r.Post("/guilds/{guildID}/applications", h.submit)
	r.Route("/guilds/{guildID}/applications", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageApplications))
			r.Get("/pending", h.listPending)
			r.Post("/{applicationID}/approve", h.approve)
			r.Post("/{applicationID}/reject", h.reject)
		})
	})
}

type applicationDTO struct {
	ID        int64     `json:"id"`
	GuildID   int64     `json:"guildId"`
	UserID    int64     `json:"userId"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	DecidedBy int64     `json:"decidedBy,omitempty"`
	DecidedAt time.Time `json:"decidedAt,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

func toDTO(a Application) applicationDTO {
	return applicationDTO{
		ID:        a.ID,
		GuildID:   a.GuildID,
		UserID:    a.UserID,
		Message:   a.Message,
		Status:    a.Status,
		DecidedBy: a.DecidedBy,
		DecidedAt: a.DecidedAt,
		CreatedAt: a.CreatedAt,
	}
}

type submitRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	a, err := h.service.Submit(r.Context(), actor, guildID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		case errors.Is(err, ErrAlreadyMember):
			httpx.Problem(w, http.StatusConflict, "already a guild member", "")
		case errors.Is(err, shared.ErrConflict):
			httpx.Problem(w, http.StatusConflict, "application already open", "")
		default:
			h.logger.Error("submit application", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "submit application failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(a))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	list, err := h.service.Pending(r.Context(), guildID)
	if err != nil {
		h.logger.Error("list pending applications", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list applications failed", "")
		return
	}
	out := make([]applicationDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toDTO(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decideRoute(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decideRoute(w, r, h.service.Reject)
}

func (h *Handler) decideRoute(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, actorID, guildID, applicationID int64) (Application, error)) {
	guildID, _ := perms.GuildIDFromRequest(r)
	applicationID, err := strconv.ParseInt(chi.URLParam(r, "applicationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "application not found", "")
		return
	}
	a, err := decide(r.Context(), shared.ActorID(r.Context()), guildID, applicationID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "application not found", "")
		case errors.Is(err, ErrAlreadyDecided):
			httpx.Problem(w, http.StatusConflict, "application already decided", "")
		default:
			h.logger.Error("decide application", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "decide application failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(a))
}
