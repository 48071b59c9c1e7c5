package guilds

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

// Handler wires HTTP endpoints for guild administration.
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

// MountRoutes registers guild routes. Permission-gated subtrees receive the
// perms middleware from the router assembly.
func (h *Handler) MountRoutes(r chi.Router, pm perms.Middleware) {
	r.Post("/guilds", h.create)
	r.Get("/guilds", h.listMine)
	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/members", h.listMembers)
		r.Get("/roles", h.roleTable)

		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageSettings))
			r.Put("/settings", h.updateSettings)
		})
		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageRoles))
			r.Put("/roles/{roleName}", h.upsertRole)
			r.Delete("/roles/{roleName}", h.deleteRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(pm.Require(perms.ManageMembers))
			r.Post("/members", h.addMember)
			r.Delete("/members/{userID}", h.kickMember)
			r.Put("/members/{userID}/role", h.assignRole)
		})
	})
}

type guildDTO struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description,omitempty"`
	OwnerID      int64     `json:"ownerId"`
	DefaultRole  string    `json:"defaultRole"`
	Plan         Plan      `json:"plan"`
	TrialEndsAt  time.Time `json:"trialEndsAt,omitzero"`
	ProTrialUsed bool      `json:"proTrialUsed"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toDTO(g Guild) guildDTO {
	return guildDTO{
		ID:           g.ID,
		Name:         g.Name,
		Slug:         g.Slug,
		Description:  g.Description,
		OwnerID:      g.OwnerID,
		DefaultRole:  g.DefaultRole,
		Plan:         g.Subscription.Plan,
		TrialEndsAt:  g.Subscription.TrialEndsAt,
		ProTrialUsed: g.Subscription.ProTrialUsed,
		CreatedAt:    g.CreatedAt,
	}
}

type createGuildRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=80"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	var req createGuildRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	g, err := h.service.Create(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			httpx.Problem(w, http.StatusConflict, "guild already exists", "")
			return
		}
		h.logger.Error("create guild", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "create guild failed", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(g))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorID(r.Context())
	if actor == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	list, err := h.service.GuildsForUser(r.Context(), actor)
	if err != nil {
		h.logger.Error("list guilds", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list guilds failed", "")
		return
	}
	out := make([]guildDTO, 0, len(list))
	for _, g := range list {
		out = append(out, toDTO(g))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	g, err := h.service.Guild(r.Context(), guildID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
			return
		}
		h.logger.Error("get guild", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "get guild failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(g))
}

type updateSettingsRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=80"`
	Description string `json:"description" validate:"max=500"`
	DefaultRole string `json:"defaultRole" validate:"max=40"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	var req updateSettingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	g, err := h.service.UpdateSettings(r.Context(), shared.ActorID(r.Context()), guildID, req.Name, req.Description, req.DefaultRole)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		case errors.Is(err, ErrUnknownRole):
			httpx.Problem(w, http.StatusBadRequest, "unknown default role", "")
		default:
			h.logger.Error("update settings", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "update settings failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(g))
}

func (h *Handler) roleTable(w http.ResponseWriter, r *http.Request) {
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	table, err := h.service.RoleTable(r.Context(), guildID)
	if err != nil {
		h.logger.Error("role table", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "role table failed", "")
		return
	}
	out := make(map[string][]perms.Permission, len(table))
	for name := range table {
		out[name] = perms.PermissionsForRole(name, table)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type upsertRoleRequest struct {
	Permissions []perms.Permission `json:"permissions"`
}

func (h *Handler) upsertRole(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	roleName := chi.URLParam(r, "roleName")
	var req upsertRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	err := h.service.UpsertRole(r.Context(), shared.ActorID(r.Context()), guildID, roleName, req.Permissions)
	if err != nil {
		if errors.Is(err, ErrUnknownPermission) {
			httpx.Problem(w, http.StatusBadRequest, "unknown permission", err.Error())
			return
		}
		h.logger.Error("upsert role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "upsert role failed", "")
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	roleName := chi.URLParam(r, "roleName")
	err := h.service.DeleteRole(r.Context(), shared.ActorID(r.Context()), guildID, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "role not found", "")
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "delete role failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

type memberDTO struct {
	UserID   int64     `json:"userId"`
	RoleName string    `json:"roleName"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	members, err := h.service.Members(r.Context(), guildID)
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list members failed", "")
		return
	}
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO{UserID: m.UserID, RoleName: m.RoleName, JoinedAt: m.JoinedAt})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type addMemberRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	var req addMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	err := h.service.AddMember(r.Context(), shared.ActorID(r.Context()), guildID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		case errors.Is(err, shared.ErrConflict):
			httpx.Problem(w, http.StatusConflict, "already a member", "")
		default:
			h.logger.Error("add member", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "add member failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) kickMember(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid user id", "")
		return
	}
	err = h.service.KickMember(r.Context(), shared.ActorID(r.Context()), guildID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOwnerImmutable):
			httpx.Problem(w, http.StatusBadRequest, "owner cannot be kicked", "")
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "member not found", "")
		default:
			h.logger.Error("kick member", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "kick member failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

type assignRoleRequest struct {
	RoleName string `json:"roleName" validate:"required,max=40"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	guildID, _ := perms.GuildIDFromRequest(r)
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid user id", "")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	err = h.service.AssignRole(r.Context(), shared.ActorID(r.Context()), guildID, userID, req.RoleName)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownRole):
			httpx.Problem(w, http.StatusBadRequest, "role not in role table", "")
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "member not found", "")
		default:
			h.logger.Error("assign role", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "assign role failed", "")
		}
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}
