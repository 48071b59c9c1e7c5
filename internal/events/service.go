package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guildhall/guildhall/internal/audit"
	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/notifications"
)

// ErrBadRSVPStatus rejects answers outside the accepted set.
var ErrBadRSVPStatus = errors.New("events: invalid rsvp status")

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, e Event) (Event, error)
	ByID(ctx context.Context, guildID, eventID int64) (Event, error)
	ListByGuild(ctx context.Context, guildID int64) ([]Event, error)
	UpsertRSVP(ctx context.Context, rsvp RSVP) error
	ListRSVPs(ctx context.Context, eventID int64) ([]RSVP, error)
}

// Roster lists the guild membership for event announcements.
type Roster interface {
	Members(ctx context.Context, guildID int64) ([]guilds.Member, error)
}

// Notifier delivers event announcements to members.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind, title, body string)
}

// Service orchestrates guild event scheduling.
type Service struct {
	store    Store
	roster   Roster
	notifier Notifier
	audit    *audit.Recorder
}

// NewService constructs a Service. roster and notifier may be nil; new
// events are then not announced.
func NewService(store Store, roster Roster, notifier Notifier, recorder *audit.Recorder) *Service {
	return &Service{store: store, roster: roster, notifier: notifier, audit: recorder}
}

// Create schedules an event.
func (s *Service) Create(ctx context.Context, actorID, guildID int64, title, description string, startsAt time.Time) (Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Event{}, fmt.Errorf("events: title required")
	}
	if startsAt.IsZero() {
		return Event{}, fmt.Errorf("events: start time required")
	}
	e, err := s.store.Create(ctx, Event{
		GuildID:     guildID,
		Title:       title,
		Description: strings.TrimSpace(description),
		StartsAt:    startsAt.UTC(),
		CreatedBy:   actorID,
	})
	if err != nil {
		return Event{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  guildID,
		Action:   "event.create",
		Entity:   "guild_events",
		EntityID: strconv.FormatInt(e.ID, 10),
		Meta:     map[string]any{"title": e.Title, "starts_at": e.StartsAt},
	})
	s.announce(ctx, actorID, e)
	return e, nil
}

// announce fans the new event out to the roster. Failures never surface to
// the caller; Notify already swallows its own errors.
func (s *Service) announce(ctx context.Context, actorID int64, e Event) {
	if s.roster == nil || s.notifier == nil {
		return
	}
	members, err := s.roster.Members(ctx, e.GuildID)
	if err != nil {
		return
	}
	title := fmt.Sprintf("New event: %s", e.Title)
	body := fmt.Sprintf("Starts %s", e.StartsAt.Format(time.RFC1123))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, m := range members {
		if m.UserID == actorID {
			continue
		}
		userID := m.UserID
		g.Go(func() error {
			s.notifier.Notify(ctx, userID, notifications.KindEventScheduled, title, body)
			return nil
		})
	}
	_ = g.Wait()
}

// Get fetches one event scoped to its guild.
func (s *Service) Get(ctx context.Context, guildID, eventID int64) (Event, error) {
	return s.store.ByID(ctx, guildID, eventID)
}

// List returns the guild's events, soonest first.
func (s *Service) List(ctx context.Context, guildID int64) ([]Event, error) {
	return s.store.ListByGuild(ctx, guildID)
}

// RSVP records the member's answer for an event. Answering again replaces
// the previous answer.
func (s *Service) RSVP(ctx context.Context, actorID, guildID, eventID int64, status string) error {
	if !ValidRSVPStatus(status) {
		return fmt.Errorf("%w: %q", ErrBadRSVPStatus, status)
	}
	if _, err := s.store.ByID(ctx, guildID, eventID); err != nil {
		return err
	}
	return s.store.UpsertRSVP(ctx, RSVP{EventID: eventID, UserID: actorID, Status: status})
}

// RSVPs lists the answers for one event.
func (s *Service) RSVPs(ctx context.Context, guildID, eventID int64) ([]RSVP, error) {
	if _, err := s.store.ByID(ctx, guildID, eventID); err != nil {
		return nil, err
	}
	return s.store.ListRSVPs(ctx, eventID)
}
