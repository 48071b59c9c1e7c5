package perms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/guildhall/guildhall/internal/shared"
)

type stubAccess struct {
	ownerID int64
	table   RoleTable
	roles   map[int64]string
}

func (s *stubAccess) OwnerID(ctx context.Context, guildID int64) (int64, error) {
	if s.ownerID == 0 {
		return 0, shared.ErrNotFound
	}
	return s.ownerID, nil
}

func (s *stubAccess) RoleTable(ctx context.Context, guildID int64) (RoleTable, error) {
	return s.table, nil
}

func (s *stubAccess) MemberRole(ctx context.Context, guildID, userID int64) (string, error) {
	role, ok := s.roles[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return role, nil
}

func requestAs(t *testing.T, userID int64, guildID string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/guilds/"+guildID+"/members", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(GuildIDParam, guildID)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	sess := &shared.Session{}
	if userID != 0 {
		sess.SetUser(userID)
	}
	return r.WithContext(shared.ContextWithSession(ctx, sess))
}

func runRequire(t *testing.T, m Middleware, required Permission, r *http.Request) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler := m.Require(required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(rec, r)
	return rec.Code
}

func TestRequireOwnerBypassesRoleTable(t *testing.T) {
	access := &stubAccess{ownerID: 1, table: RoleTable{}, roles: map[int64]string{}}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageRoles, requestAs(t, 1, "42")); code != http.StatusNoContent {
		t.Fatalf("owner should pass without a role, got %d", code)
	}
}

func TestRequireDeniesMemberWithoutPermission(t *testing.T) {
	access := &stubAccess{
		ownerID: 1,
		table:   RoleTable{"recruit": {Permissions: []Permission{}}},
		roles:   map[int64]string{5: "recruit"},
	}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageMembers, requestAs(t, 5, "42")); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAllowsMemberWithPermission(t *testing.T) {
	access := &stubAccess{
		ownerID: 1,
		table:   RoleTable{"officer": {Permissions: []Permission{ManageMembers}}},
		roles:   map[int64]string{5: "officer"},
	}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageMembers, requestAs(t, 5, "42")); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
}

func TestRequireDeniesNonMember(t *testing.T) {
	access := &stubAccess{ownerID: 1, table: RoleTable{}, roles: map[int64]string{}}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageMembers, requestAs(t, 9, "42")); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", code)
	}
}

func TestRequireUnauthenticated(t *testing.T) {
	access := &stubAccess{ownerID: 1}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageMembers, requestAs(t, 0, "42")); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func runRequireMember(t *testing.T, m Middleware, r *http.Request) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler := m.RequireMember()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(rec, r)
	return rec.Code
}

func TestRequireMemberAdmitsAnyRole(t *testing.T) {
	access := &stubAccess{
		ownerID: 1,
		table:   RoleTable{"recruit": {Permissions: []Permission{}}},
		roles:   map[int64]string{5: "recruit"},
	}
	m := Middleware{Access: access}
	if code := runRequireMember(t, m, requestAs(t, 5, "42")); code != http.StatusNoContent {
		t.Fatalf("member with empty role should pass, got %d", code)
	}
	if code := runRequireMember(t, m, requestAs(t, 1, "42")); code != http.StatusNoContent {
		t.Fatalf("owner should pass, got %d", code)
	}
}

func TestRequireMemberRejectsOutsider(t *testing.T) {
	access := &stubAccess{ownerID: 1, roles: map[int64]string{}}
	m := Middleware{Access: access}
	if code := runRequireMember(t, m, requestAs(t, 9, "42")); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", code)
	}
}

func TestRequireUnknownGuild(t *testing.T) {
	access := &stubAccess{}
	m := Middleware{Access: access}
	if code := runRequire(t, m, ManageMembers, requestAs(t, 5, "42")); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}
