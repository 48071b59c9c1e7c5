package events

import (
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

// Handler wires HTTP endpoints for guild events.
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

// MountRoutes registers event routes under a guild subtree.
func (h *Handler) MountRoutes(r chi.Router, pm perms.Middleware) {
	r.Route("/guilds/{guildID}/events", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(pm.RequireMember())
			r.Get("/", h.list)
			r.Get("/{eventID}", h.get)
			r.Get("/{eventID}/rsvps", h.listRSVPs)
			r.Put("/{eventID}/rsvp", h.rsvp)
		})
		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageEvents))
			r.Post("/", h.create)
		})
	})
}

type eventDTO struct {
	ID          int64     `json:"id"`
	GuildID     int64     `json:"guildId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toDTO(e Event) eventDTO {
	return eventDTO{
		ID:          e.ID,
		GuildID:     e.GuildID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    e.StartsAt,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
	}
}

func eventIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
}

type createEventRequest struct {
	Title       string    `json:"title" validate:"required,min=3,max=120"`
	Description string    `json:"description" validate:"max=2000"`
	StartsAt    time.Time `json:"startsAt" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	var req createEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	e, err := h.service.Create(r.Context(), shared.ActorID(r.Context()), guildID, req.Title, req.Description, req.StartsAt)
	if err != nil {
		h.logger.Error("create event", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "create event failed", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(e))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	list, err := h.service.List(r.Context(), guildID)
	if err != nil {
		h.logger.Error("list events", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list events failed", "")
		return
	}
	out := make([]eventDTO, 0, len(list))
	for _, e := range list {
		out = append(out, toDTO(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	eventID, err := eventIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "event not found", "")
		return
	}
	e, err := h.service.Get(r.Context(), guildID, eventID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "event not found", "")
			return
		}
		h.logger.Error("get event", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "get event failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(e))
}

type rsvpRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) rsvp(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	eventID, err := eventIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "event not found", "")
		return
	}
	var req rsvpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	err = h.service.RSVP(r.Context(), shared.ActorID(r.Context()), guildID, eventID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadRSVPStatus):
			httpx.Problem(w, http.StatusBadRequest, "invalid rsvp status", err.Error())
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "event not found", "")
		default:
			h.logger.Error("rsvp", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "rsvp failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

type rsvpDTO struct {
	UserID      int64     `json:"userId"`
	Status      string    `json:"status"`
	RespondedAt time.Time `json:"respondedAt"`
}

func (h *Handler) listRSVPs(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	eventID, err := eventIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "event not found", "")
		return
	}
	list, err := h.service.RSVPs(r.Context(), guildID, eventID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "event not found", "")
			return
		}
		h.logger.Error("list rsvps", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list rsvps failed", "")
		return
	}
	out := make([]rsvpDTO, 0, len(list))
	for _, rsvp := range list {
		out = append(out, rsvpDTO{UserID: rsvp.UserID, Status: rsvp.Status, RespondedAt: rsvp.RespondedAt})
	}
	httpx.JSON(w, http.StatusOK, out)
}
