package achievements

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

// Handler wires HTTP endpoints for achievements.
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

// MountRoutes registers achievement routes under a guild subtree.
func (h *Handler) MountRoutes(r chi.Router, pm perms.Middleware) {
	r.Route("/guilds/{guildID}/achievements", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(pm.RequireMember())
			r.Get("/", h.list)
			r.Get("/{achievementID}/awards", h.listAwards)
			r.Get("/members/{userID}", h.memberAwards)
		})
		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageAchievements))
			r.Post("/", h.define)
			r.Post("/{achievementID}/awards", h.award)
		})
	})
}

type definitionDTO struct {
	ID          int64     `json:"id"`
	GuildID     int64     `json:"guildId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Points      int       `json:"points"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toDTO(d Definition) definitionDTO {
	return definitionDTO{
		ID:          d.ID,
		GuildID:     d.GuildID,
		Name:        d.Name,
		Description: d.Description,
		Points:      d.Points,
		CreatedAt:   d.CreatedAt,
	}
}

type defineRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Points      int    `json:"points" validate:"gte=0,lte=100000"`
}

func (h *Handler) define(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	var req defineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	d, err := h.service.Define(r.Context(), shared.ActorID(r.Context()), guildID, req.Name, req.Description, req.Points)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			httpx.Problem(w, http.StatusConflict, "achievement already exists", "")
			return
		}
		h.logger.Error("define achievement", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "define achievement failed", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(d))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	list, err := h.service.List(r.Context(), guildID)
	if err != nil {
		h.logger.Error("list achievements", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list achievements failed", "")
		return
	}
	out := make([]definitionDTO, 0, len(list))
	for _, d := range list {
		out = append(out, toDTO(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func achievementIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "achievementID"), 10, 64)
}

type awardRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

func (h *Handler) award(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	achievementID, err := achievementIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "achievement not found", "")
		return
	}
	var req awardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	err = h.service.Award(r.Context(), shared.ActorID(r.Context()), guildID, achievementID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "achievement not found", "")
		case errors.Is(err, ErrNotMember):
			httpx.Problem(w, http.StatusBadRequest, "user is not a guild member", "")
		case errors.Is(err, shared.ErrConflict):
			httpx.Problem(w, http.StatusConflict, "already awarded", "")
		default:
			h.logger.Error("award achievement", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "award achievement failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

type awardDTO struct {
	AchievementID int64     `json:"achievementId"`
	UserID        int64     `json:"userId"`
	AwardedBy     int64     `json:"awardedBy"`
	AwardedAt     time.Time `json:"awardedAt"`
}

func (h *Handler) listAwards(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	achievementID, err := achievementIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "achievement not found", "")
		return
	}
	list, err := h.service.Awards(r.Context(), guildID, achievementID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "achievement not found", "")
			return
		}
		h.logger.Error("list awards", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list awards failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toAwardDTOs(list))
}

func (h *Handler) memberAwards(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid user id", "")
		return
	}
	list, err := h.service.MemberAwards(r.Context(), guildID, userID)
	if err != nil {
		h.logger.Error("member awards", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "member awards failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toAwardDTOs(list))
}

func toAwardDTOs(list []Award) []awardDTO {
	out := make([]awardDTO, 0, len(list))
	for _, a := range list {
		out = append(out, awardDTO{
			AchievementID: a.AchievementID,
			UserID:        a.UserID,
			AwardedBy:     a.AwardedBy,
			AwardedAt:     a.AwardedAt,
		})
	}
	return out
}
