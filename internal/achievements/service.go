package achievements

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/guildhall/guildhall/internal/audit"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateDefinition(ctx context.Context, d Definition) (Definition, error)
	DefinitionByID(ctx context.Context, guildID, id int64) (Definition, error)
	ListDefinitions(ctx context.Context, guildID int64) ([]Definition, error)
	InsertAward(ctx context.Context, a Award) error
	ListAwards(ctx context.Context, achievementID int64) ([]Award, error)
	ListMemberAwards(ctx context.Context, guildID, userID int64) ([]Award, error)
}

// Membership answers whether a user belongs to a guild. Awards only go to
// current members.
type Membership interface {
	IsMember(ctx context.Context, guildID, userID int64) (bool, error)
}

// ErrNotMember rejects awards to users outside the guild.
var ErrNotMember = fmt.Errorf("achievements: user is not a guild member")

// Service orchestrates achievement definitions and awards.
type Service struct {
	store      Store
	membership Membership
	audit      *audit.Recorder
}

// NewService constructs a Service.
func NewService(store Store, membership Membership, recorder *audit.Recorder) *Service {
	return &Service{store: store, membership: membership, audit: recorder}
}

// Define creates an achievement for the guild.
func (s *Service) Define(ctx context.Context, actorID, guildID int64, name, description string, points int) (Definition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Definition{}, fmt.Errorf("achievements: name required")
	}
	if points < 0 {
		return Definition{}, fmt.Errorf("achievements: points must not be negative")
	}
	d, err := s.store.CreateDefinition(ctx, Definition{
		GuildID:     guildID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Points:      points,
	})
	if err != nil {
		return Definition{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "achievement.define",
		Entity:   "achievements",
		EntityID: strconv.FormatInt(d.ID, 10),
		Meta:     map[string]any{"name": d.Name, "points": d.Points},
	})
	return d, nil
}

// List returns the guild's achievements.
func (s *Service) List(ctx context.Context, guildID int64) ([]Definition, error) {
	return s.store.ListDefinitions(ctx, guildID)
}

// Award grants an achievement to a guild member. Duplicate awards surface
// as a conflict from the store.
func (s *Service) Award(ctx context.Context, actorID, guildID, achievementID, userID int64) error {
	d, err := s.store.DefinitionByID(ctx, guildID, achievementID)
	if err != nil {
		return err
	}
	ok, err := s.membership.IsMember(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	if err := s.store.InsertAward(ctx, Award{
		AchievementID: d.ID,
		UserID:        userID,
		AwardedBy:     actorID,
	}); err != nil {
		return err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "achievement.award",
		Entity:   "achievement_awards",
		EntityID: strconv.FormatInt(d.ID, 10),
		Meta:     map[string]any{"user_id": userID, "name": d.Name},
	})
	return nil
}

// Awards lists who earned one achievement.
func (s *Service) Awards(ctx context.Context, guildID, achievementID int64) ([]Award, error) {
	if _, err := s.store.DefinitionByID(ctx, guildID, achievementID); err != nil {
		return nil, err
	}
	return s.store.ListAwards(ctx, achievementID)
}

// MemberAwards lists a member's awards across the guild.
func (s *Service) MemberAwards(ctx context.Context, guildID, userID int64) ([]Award, error) {
	return s.store.ListMemberAwards(ctx, guildID, userID)
}
