package notifications

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guildhall/guildhall/internal/platform/httpx"
	"github.com/guildhall/guildhall/internal/shared"
)

// Handler wires HTTP endpoints for the current user's notifications.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{notificationID}/read", h.markRead)
		r.Post("/read-all", h.markAllRead)
	})
}

type notificationDTO struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	ReadAt    time.Time `json:"readAt,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.service.ListOwn(r.Context(), actor, unreadOnly)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list notifications failed", "")
		return
	}
	out := make([]notificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, notificationDTO{
			ID:        n.ID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "notification not found", "")
		return
	}
	if err := h.service.MarkRead(r.Context(), actor, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "notification not found", "")
			return
		}
		h.logger.Error("mark read", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "mark read failed", "")
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	n, err := h.service.MarkAllRead(r.Context(), actor)
	if err != nil {
		h.logger.Error("mark all read", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "mark all read failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}
