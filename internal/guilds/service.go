package guilds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/shared"
)

// ErrOwnerImmutable rejects mutations that would displace the guild owner.
var ErrOwnerImmutable = errors.New("guilds: owner membership is immutable")

// ErrUnknownPermission rejects role entries referencing unknown capability tags.
var ErrUnknownPermission = errors.New("guilds: unknown permission")

// ErrUnknownRole rejects assignments to roles missing from the role table.
var ErrUnknownRole = errors.New("guilds: role not in role table")

// Store is the persistence surface the service needs.
type Store interface {
	CreateGuild(ctx context.Context, name, slug, description string, ownerID int64, defaultRole string) (Guild, error)
	GuildByID(ctx context.Context, id int64) (Guild, error)
	ListGuildsForUser(ctx context.Context, userID int64) ([]Guild, error)
	UpdateSettings(ctx context.Context, id int64, name, description, defaultRole string) (Guild, error)
	OwnerID(ctx context.Context, guildID int64) (int64, error)
	RoleTable(ctx context.Context, guildID int64) (perms.RoleTable, error)
	UpsertRole(ctx context.Context, entry RoleEntry) error
	DeleteRole(ctx context.Context, guildID int64, name string) error
	ListMembers(ctx context.Context, guildID int64) ([]Member, error)
	AddMember(ctx context.Context, guildID, userID int64, roleName string) error
	RemoveMember(ctx context.Context, guildID, userID int64) error
	MemberRole(ctx context.Context, guildID, userID int64) (string, error)
	AssignRole(ctx context.Context, guildID, userID int64, roleName string) error
}

// Service orchestrates guild administration.
type Service struct {
	store Store
	audit *audit.Recorder
}

// NewService constructs a Service.
func NewService(store Store, recorder *audit.Recorder) *Service {
	return &Service{store: store, audit: recorder}
}

// DefaultRoleName is assigned to new guilds and new members when no other
// role is chosen.
const DefaultRoleName = "member"

// Create provisions a guild with the creator as owner and seeds the role
// table with the default member role. Subscription state starts free.
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string) (Guild, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Guild{}, fmt.Errorf("guilds: name required")
	}
	if ownerID == 0 {
		return Guild{}, fmt.Errorf("guilds: owner required")
	}
	slug := Slugify(name)
	if slug == "" {
		return Guild{}, fmt.Errorf("guilds: name yields empty slug")
	}
	g, err := s.store.CreateGuild(ctx, name, slug, strings.TrimSpace(description), ownerID, DefaultRoleName)
	if err != nil {
		return Guild{}, err
	}
	if err := s.store.UpsertRole(ctx, RoleEntry{GuildID: g.ID, Name: DefaultRoleName}); err != nil {
		return Guild{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  ownerID,
		GuildID:  g.ID,
		Action:   "guild.create",
		Entity:   "guilds",
		EntityID: strconv.FormatInt(g.ID, 10),
	})
	return g, nil
}

// Guild fetches one guild.
func (s *Service) Guild(ctx context.Context, id int64) (Guild, error) {
	return s.store.GuildByID(ctx, id)
}

// GuildsForUser lists guilds the user owns or belongs to.
func (s *Service) GuildsForUser(ctx context.Context, userID int64) ([]Guild, error) {
	return s.store.ListGuildsForUser(ctx, userID)
}

// UpdateSettings changes name, description, and default role.
func (s *Service) UpdateSettings(ctx context.Context, actorID, guildID int64, name, description, defaultRole string) (Guild, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Guild{}, fmt.Errorf("guilds: name required")
	}
	defaultRole = strings.TrimSpace(defaultRole)
	if defaultRole == "" {
		defaultRole = DefaultRoleName
	}
	table, err := s.store.RoleTable(ctx, guildID)
	if err != nil {
		return Guild{}, err
	}
	if _, ok := table[defaultRole]; !ok {
		return Guild{}, ErrUnknownRole
	}
	g, err := s.store.UpdateSettings(ctx, guildID, name, strings.TrimSpace(description), defaultRole)
	if err != nil {
		return Guild{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "settings.update",
		Entity:   "guilds",
		EntityID: strconv.FormatInt(guildID, 10),
		Meta:     map[string]any{"name": name, "default_role": defaultRole},
	})
	return g, nil
}

// RoleTable returns the guild role table.
func (s *Service) RoleTable(ctx context.Context, guildID int64) (perms.RoleTable, error) {
	return s.store.RoleTable(ctx, guildID)
}

// UpsertRole creates or replaces one role table entry. Every referenced
// permission must name a known capability.
func (s *Service) UpsertRole(ctx context.Context, actorID, guildID int64, name string, granted []perms.Permission) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("guilds: role name required")
	}
	for _, p := range granted {
		if !p.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}
	if err := s.store.UpsertRole(ctx, RoleEntry{GuildID: guildID, Name: name, Permissions: granted}); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "role.upsert",
		Entity:   "guild_roles",
		EntityID: name,
		Meta:     map[string]any{"permissions": granted},
	})
	return nil
}

// DeleteRole removes a role table entry. The guild's default role stays.
func (s *Service) DeleteRole(ctx context.Context, actorID, guildID int64, name string) error {
	g, err := s.store.GuildByID(ctx, guildID)
	if err != nil {
		return err
	}
	if name == g.DefaultRole {
		return fmt.Errorf("guilds: cannot delete default role %q", name)
	}
	if err := s.store.DeleteRole(ctx, guildID, name); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "role.delete",
		Entity:   "guild_roles",
		EntityID: name,
	})
	return nil
}

// Members returns the guild roster.
func (s *Service) Members(ctx context.Context, guildID int64) ([]Member, error) {
	return s.store.ListMembers(ctx, guildID)
}

// AddMember joins a user to the guild with the guild's default role.
func (s *Service) AddMember(ctx context.Context, actorID, guildID, userID int64) error {
	g, err := s.store.GuildByID(ctx, guildID)
	if err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, guildID, userID, g.DefaultRole); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "member.add",
		Entity:   "guild_members",
		EntityID: strconv.FormatInt(userID, 10),
	})
	return nil
}

// KickMember removes a member. The owner cannot be kicked.
func (s *Service) KickMember(ctx context.Context, actorID, guildID, userID int64) error {
	ownerID, err := s.store.OwnerID(ctx, guildID)
	if err != nil {
		return err
	}
	if perms.IsOwner(userID, ownerID) {
		return ErrOwnerImmutable
	}
	if err := s.store.RemoveMember(ctx, guildID, userID); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "member.kick",
		Entity:   "guild_members",
		EntityID: strconv.FormatInt(userID, 10),
	})
	return nil
}

// AssignRole changes a member's role to one present in the role table.
func (s *Service) AssignRole(ctx context.Context, actorID, guildID, userID int64, roleName string) error {
	table, err := s.store.RoleTable(ctx, guildID)
	if err != nil {
		return err
	}
	if _, ok := table[roleName]; !ok {
		return ErrUnknownRole
	}
	if err := s.store.AssignRole(ctx, guildID, userID, roleName); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "member.assign_role",
		Entity:   "guild_members",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"role": roleName},
	})
	return nil
}

// IsMember reports whether the user belongs to the guild or owns it.
func (s *Service) IsMember(ctx context.Context, guildID, userID int64) (bool, error) {
	ownerID, err := s.store.OwnerID(ctx, guildID)
	if err != nil {
		return false, err
	}
	if perms.IsOwner(userID, ownerID) {
		return true, nil
	}
	_, err = s.store.MemberRole(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
