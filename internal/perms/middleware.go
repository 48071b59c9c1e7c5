package perms

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guildhall/guildhall/internal/shared"
)

// GuildAccess resolves the authorization inputs for one guild.
type GuildAccess interface {
	OwnerID(ctx context.Context, guildID int64) (int64, error)
	RoleTable(ctx context.Context, guildID int64) (RoleTable, error)
	MemberRole(ctx context.Context, guildID, userID int64) (string, error)
}

// Middleware wires capability checks for guild-scoped HTTP handlers.
type Middleware struct {
	Access GuildAccess
	Logger *slog.Logger
}

// GuildIDParam is the chi URL parameter carrying the guild id.
const GuildIDParam = "guildID"

// GuildIDFromRequest parses the guild id URL parameter.
func GuildIDFromRequest(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, GuildIDParam)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("perms: invalid guild id")
	}
	return id, nil
}

// Require ensures the current actor holds the permission in the guild named
// by the URL. The owner passes unconditionally; everyone else is evaluated
// against the guild's role table. A denial is a normal "no", answered with
// 403 and never logged as an error.
func (m Middleware) Require(required Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorID(r.Context())
			if actor == 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			guildID, err := GuildIDFromRequest(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			allowed, err := m.allow(r.Context(), guildID, actor, required)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("perms require", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMember admits any member of the guild, owner included, without
// consulting the role table.
func (m Middleware) RequireMember() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorID(r.Context())
			if actor == 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			guildID, err := GuildIDFromRequest(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			ownerID, err := m.Access.OwnerID(r.Context(), guildID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("perms require member", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !IsOwner(actor, ownerID) {
				if _, err := m.Access.MemberRole(r.Context(), guildID, actor); err != nil {
					if errors.Is(err, shared.ErrNotFound) {
						http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
						return
					}
					if m.Logger != nil {
						m.Logger.Error("perms require member", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner restricts a route to the guild owner.
func (m Middleware) RequireOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorID(r.Context())
			if actor == 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			guildID, err := GuildIDFromRequest(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			ownerID, err := m.Access.OwnerID(r.Context(), guildID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("perms require owner", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !IsOwner(actor, ownerID) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) allow(ctx context.Context, guildID, actor int64, required Permission) (bool, error) {
	ownerID, err := m.Access.OwnerID(ctx, guildID)
	if err != nil {
		return false, err
	}
	if IsOwner(actor, ownerID) {
		return true, nil
	}
	roleName, err := m.Access.MemberRole(ctx, guildID, actor)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	table, err := m.Access.RoleTable(ctx, guildID)
	if err != nil {
		return false, err
	}
	return HasPermission(roleName, table, required), nil
}
