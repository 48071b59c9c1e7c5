package guilds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/shared"
)

type stubStore struct {
	guilds  map[int64]Guild
	roles   map[int64]map[string]RoleEntry
	members map[int64]map[int64]string
	nextID  int64
}

func newStubStore() *stubStore {
	return &stubStore{
		guilds:  map[int64]Guild{},
		roles:   map[int64]map[string]RoleEntry{},
		members: map[int64]map[int64]string{},
		nextID:  1,
	}
}

func (s *stubStore) CreateGuild(ctx context.Context, name, slug, description string, ownerID int64, defaultRole string) (Guild, error) {
	id := s.nextID
	s.nextID++
	g := Guild{
		ID: id, Name: name, Slug: slug, Description: description,
		OwnerID: ownerID, DefaultRole: defaultRole,
		Subscription: Subscription{Plan: PlanFree},
		CreatedAt:    time.Now(),
	}
	s.guilds[id] = g
	s.members[id] = map[int64]string{ownerID: defaultRole}
	return g, nil
}

func (s *stubStore) GuildByID(ctx context.Context, id int64) (Guild, error) {
	g, ok := s.guilds[id]
	if !ok {
		return Guild{}, shared.ErrNotFound
	}
	return g, nil
}

func (s *stubStore) ListGuildsForUser(ctx context.Context, userID int64) ([]Guild, error) {
	var out []Guild
	for id, g := range s.guilds {
		if g.OwnerID == userID {
			out = append(out, g)
			continue
		}
		if _, ok := s.members[id][userID]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateSettings(ctx context.Context, id int64, name, description, defaultRole string) (Guild, error) {
	g, ok := s.guilds[id]
	if !ok {
		return Guild{}, shared.ErrNotFound
	}
	g.Name, g.Description, g.DefaultRole = name, description, defaultRole
	s.guilds[id] = g
	return g, nil
}

func (s *stubStore) OwnerID(ctx context.Context, guildID int64) (int64, error) {
	g, ok := s.guilds[guildID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return g.OwnerID, nil
}

func (s *stubStore) RoleTable(ctx context.Context, guildID int64) (perms.RoleTable, error) {
	table := perms.RoleTable{}
	for name, entry := range s.roles[guildID] {
		table[name] = perms.Role{Permissions: entry.Permissions}
	}
	return table, nil
}

func (s *stubStore) UpsertRole(ctx context.Context, entry RoleEntry) error {
	if s.roles[entry.GuildID] == nil {
		s.roles[entry.GuildID] = map[string]RoleEntry{}
	}
	s.roles[entry.GuildID][entry.Name] = entry
	return nil
}

func (s *stubStore) DeleteRole(ctx context.Context, guildID int64, name string) error {
	if _, ok := s.roles[guildID][name]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles[guildID], name)
	return nil
}

func (s *stubStore) ListMembers(ctx context.Context, guildID int64) ([]Member, error) {
	var out []Member
	for userID, role := range s.members[guildID] {
		out = append(out, Member{GuildID: guildID, UserID: userID, RoleName: role})
	}
	return out, nil
}

func (s *stubStore) AddMember(ctx context.Context, guildID, userID int64, roleName string) error {
	if _, ok := s.members[guildID][userID]; ok {
		return shared.ErrConflict
	}
	s.members[guildID][userID] = roleName
	return nil
}

func (s *stubStore) RemoveMember(ctx context.Context, guildID, userID int64) error {
	if _, ok := s.members[guildID][userID]; !ok {
		return shared.ErrNotFound
	}
	delete(s.members[guildID], userID)
	return nil
}

func (s *stubStore) MemberRole(ctx context.Context, guildID, userID int64) (string, error) {
	role, ok := s.members[guildID][userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return role, nil
}

func (s *stubStore) AssignRole(ctx context.Context, guildID, userID int64, roleName string) error {
	if _, ok := s.members[guildID][userID]; !ok {
		return shared.ErrNotFound
	}
	s.members[guildID][userID] = roleName
	return nil
}

func TestCreateSeedsOwnerAndDefaultRole(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)

	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "raiding guild")
	require.NoError(t, err)
	require.Equal(t, int64(7), g.OwnerID)
	require.Equal(t, "iron-vanguard", g.Slug)
	require.Equal(t, PlanFree, g.Subscription.Plan)

	table, err := svc.RoleTable(context.Background(), g.ID)
	require.NoError(t, err)
	require.Contains(t, table, DefaultRoleName)

	ok, err := svc.IsMember(context.Background(), g.ID, 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc := NewService(newStubStore(), nil)
	_, err := svc.Create(context.Background(), 7, "   ", "")
	require.Error(t, err)
}

func TestUpsertRoleRejectsUnknownPermission(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "")
	require.NoError(t, err)

	err = svc.UpsertRole(context.Background(), 7, g.ID, "officer", []perms.Permission{"manage-universe"})
	require.ErrorIs(t, err, ErrUnknownPermission)

	err = svc.UpsertRole(context.Background(), 7, g.ID, "officer", []perms.Permission{perms.ManageMembers})
	require.NoError(t, err)
}

func TestKickMemberProtectsOwner(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "")
	require.NoError(t, err)

	err = svc.KickMember(context.Background(), 7, g.ID, 7)
	require.ErrorIs(t, err, ErrOwnerImmutable)

	require.NoError(t, svc.AddMember(context.Background(), 7, g.ID, 9))
	require.NoError(t, svc.KickMember(context.Background(), 7, g.ID, 9))

	ok, err := svc.IsMember(context.Background(), g.ID, 9)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAssignRoleRequiresTableEntry(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(context.Background(), 7, g.ID, 9))

	err = svc.AssignRole(context.Background(), 7, g.ID, 9, "officer")
	require.ErrorIs(t, err, ErrUnknownRole)

	require.NoError(t, svc.UpsertRole(context.Background(), 7, g.ID, "officer", []perms.Permission{perms.ManageEvents}))
	require.NoError(t, svc.AssignRole(context.Background(), 7, g.ID, 9, "officer"))

	role, err := store.MemberRole(context.Background(), g.ID, 9)
	require.NoError(t, err)
	require.Equal(t, "officer", role)
}

func TestUpdateSettingsValidatesDefaultRole(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "")
	require.NoError(t, err)

	_, err = svc.UpdateSettings(context.Background(), 7, g.ID, "Iron Vanguard", "", "officer")
	require.ErrorIs(t, err, ErrUnknownRole)

	updated, err := svc.UpdateSettings(context.Background(), 7, g.ID, "Iron Vanguard II", "new docs", DefaultRoleName)
	require.NoError(t, err)
	require.Equal(t, "Iron Vanguard II", updated.Name)
}

func TestDeleteRoleKeepsDefault(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	g, err := svc.Create(context.Background(), 7, "Iron Vanguard", "")
	require.NoError(t, err)

	err = svc.DeleteRole(context.Background(), 7, g.ID, DefaultRoleName)
	require.Error(t, err)
}
