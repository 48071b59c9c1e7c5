package applications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/notifications"
	"github.com/guildhall/guildhall/internal/shared"
)

// ErrAlreadyDecided rejects decisions on applications that have left the
// pending state.
var ErrAlreadyDecided = errors.New("applications: already decided")

// ErrAlreadyMember rejects applications from current members.
var ErrAlreadyMember = errors.New("applications: already a guild member")

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, guildID, userID int64, message string) (Application, error)
	ByID(ctx context.Context, guildID, id int64) (Application, error)
	ListPending(ctx context.Context, guildID int64) ([]Application, error)
	Decide(ctx context.Context, guildID, id, decidedBy int64, status string) (Application, error)
}

// GuildDirectory is the slice of the guild service recruitment needs.
type GuildDirectory interface {
	Guild(ctx context.Context, id int64) (guilds.Guild, error)
	IsMember(ctx context.Context, guildID, userID int64) (bool, error)
	AddMember(ctx context.Context, actorID, guildID, userID int64) error
}

// Notifier delivers decision outcomes to applicants.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind, title, body string)
}

// Service orchestrates recruitment applications.
type Service struct {
	store    Store
	guilds   GuildDirectory
	notifier Notifier
	audit    *audit.Recorder
}

// NewService constructs a Service.
func NewService(store Store, directory GuildDirectory, notifier Notifier, recorder *audit.Recorder) *Service {
	return &Service{store: store, guilds: directory, notifier: notifier, audit: recorder}
}

// Submit files an application. Current members cannot apply, and a user has
// at most one open application per guild.
func (s *Service) Submit(ctx context.Context, userID, guildID int64, message string) (Application, error) {
	if userID == 0 {
		return Application{}, fmt.Errorf("applications: applicant required")
	}
	if _, err := s.guilds.Guild(ctx, guildID); err != nil {
		return Application{}, err
	}
	member, err := s.guilds.IsMember(ctx, guildID, userID)
	if err != nil {
		return Application{}, err
	}
	if member {
		return Application{}, ErrAlreadyMember
	}
	a, err := s.store.Create(ctx, guildID, userID, strings.TrimSpace(message))
	if err != nil {
		return Application{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  userID,
		GuildID:  guildID,
		Action:   "application.submit",
		Entity:   "guild_applications",
		EntityID: strconv.FormatInt(a.ID, 10),
	})
	return a, nil
}

// Pending lists the guild's open applications.
func (s *Service) Pending(ctx context.Context, guildID int64) ([]Application, error) {
	return s.store.ListPending(ctx, guildID)
}

// Approve accepts a pending application, adds the applicant as a member
// with the guild's default role, and notifies them.
func (s *Service) Approve(ctx context.Context, actorID, guildID, applicationID int64) (Application, error) {
	a, err := s.decide(ctx, actorID, guildID, applicationID, StatusApproved)
	if err != nil {
		return Application{}, err
	}
	if err := s.guilds.AddMember(ctx, actorID, guildID, a.UserID); err != nil && !errors.Is(err, shared.ErrConflict) {
		return Application{}, err
	}
	g, err := s.guilds.Guild(ctx, guildID)
	guildName := ""
	if err == nil {
		guildName = g.Name
	}
	s.notifier.Notify(ctx, a.UserID, notifications.KindApplicationApproved,
		"Application approved",
		fmt.Sprintf("Welcome to %s!", guildName))
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "application.approve",
		Entity:   "guild_applications",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     map[string]any{"applicant_id": a.UserID},
	})
	return a, nil
}

// Reject declines a pending application and notifies the applicant.
func (s *Service) Reject(ctx context.Context, actorID, guildID, applicationID int64) (Application, error) {
	a, err := s.decide(ctx, actorID, guildID, applicationID, StatusRejected)
	if err != nil {
		return Application{}, err
	}
	s.notifier.Notify(ctx, a.UserID, notifications.KindApplicationRejected,
		"Application declined",
		"Your application was not accepted this time.")
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "application.reject",
		Entity:   "guild_applications",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     map[string]any{"applicant_id": a.UserID},
	})
	return a, nil
}

func (s *Service) decide(ctx context.Context, actorID, guildID, applicationID int64, status string) (Application, error) {
	current, err := s.store.ByID(ctx, guildID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if current.Status != StatusPending {
		return Application{}, fmt.Errorf("%w: %s", ErrAlreadyDecided, current.Status)
	}
	a, err := s.store.Decide(ctx, guildID, applicationID, actorID, status)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Lost the race with another decision.
			return Application{}, ErrAlreadyDecided
		}
		return Application{}, err
	}
	return a, nil
}
