package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/shared"
)

type stubStore struct {
	nextID int64
	events map[int64]Event
	rsvps  map[int64]map[int64]RSVP
}

func newStubStore() *stubStore {
	return &stubStore{
		nextID: 1,
		events: map[int64]Event{},
		rsvps:  map[int64]map[int64]RSVP{},
	}
}

func (s *stubStore) Create(ctx context.Context, e Event) (Event, error) {
	e.ID = s.nextID
	s.nextID++
	e.CreatedAt = time.Now()
	s.events[e.ID] = e
	return e, nil
}

func (s *stubStore) ByID(ctx context.Context, guildID, eventID int64) (Event, error) {
	e, ok := s.events[eventID]
	if !ok || e.GuildID != guildID {
		return Event{}, shared.ErrNotFound
	}
	return e, nil
}

func (s *stubStore) ListByGuild(ctx context.Context, guildID int64) ([]Event, error) {
	out := make([]Event, 0)
	for _, e := range s.events {
		if e.GuildID == guildID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubStore) UpsertRSVP(ctx context.Context, rsvp RSVP) error {
	byUser, ok := s.rsvps[rsvp.EventID]
	if !ok {
		byUser = map[int64]RSVP{}
		s.rsvps[rsvp.EventID] = byUser
	}
	rsvp.RespondedAt = time.Now()
	byUser[rsvp.UserID] = rsvp
	return nil
}

func (s *stubStore) ListRSVPs(ctx context.Context, eventID int64) ([]RSVP, error) {
	out := make([]RSVP, 0)
	for _, rsvp := range s.rsvps[eventID] {
		out = append(out, rsvp)
	}
	return out, nil
}

type stubRoster struct {
	members []guilds.Member
}

func (s *stubRoster) Members(ctx context.Context, guildID int64) ([]guilds.Member, error) {
	return s.members, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []int64
}

func (s *stubNotifier) Notify(ctx context.Context, userID int64, kind, title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, userID)
}

func TestCreateAnnouncesToRoster(t *testing.T) {
	roster := &stubRoster{members: []guilds.Member{
		{GuildID: 7, UserID: 1},
		{GuildID: 7, UserID: 5},
		{GuildID: 7, UserID: 9},
	}}
	notifier := &stubNotifier{}
	svc := NewService(newStubStore(), roster, notifier, nil)

	_, err := svc.Create(context.Background(), 1, 7, "Raid Night", "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{5, 9}, notifier.sent, "creator is not notified")
}

func TestCreateRequiresTitleAndStart(t *testing.T) {
	svc := NewService(newStubStore(), nil, nil, nil)

	_, err := svc.Create(context.Background(), 1, 7, "  ", "", time.Now())
	require.Error(t, err)

	_, err = svc.Create(context.Background(), 1, 7, "Raid Night", "", time.Time{})
	require.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil, nil, nil)

	startsAt := time.Date(2026, 9, 12, 20, 0, 0, 0, time.UTC)
	e, err := svc.Create(context.Background(), 1, 7, "Raid Night", "bring flasks", startsAt)
	require.NoError(t, err)
	require.Equal(t, int64(7), e.GuildID)
	require.Equal(t, startsAt, e.StartsAt)

	got, err := svc.Get(context.Background(), 7, e.ID)
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)

	_, err = svc.Get(context.Background(), 8, e.ID)
	require.ErrorIs(t, err, shared.ErrNotFound, "events are guild scoped")
}

func TestRSVPReplacesPreviousAnswer(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil, nil, nil)

	e, err := svc.Create(context.Background(), 1, 7, "Raid Night", "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.RSVP(context.Background(), 5, 7, e.ID, RSVPGoing))
	require.NoError(t, svc.RSVP(context.Background(), 5, 7, e.ID, RSVPDeclined))

	list, err := svc.RSVPs(context.Background(), 7, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, RSVPDeclined, list[0].Status)
}

func TestRSVPRejectsBadStatus(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil, nil, nil)

	e, err := svc.Create(context.Background(), 1, 7, "Raid Night", "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	err = svc.RSVP(context.Background(), 5, 7, e.ID, "perhaps")
	require.ErrorIs(t, err, ErrBadRSVPStatus)
}

func TestRSVPUnknownEvent(t *testing.T) {
	svc := NewService(newStubStore(), nil, nil, nil)
	err := svc.RSVP(context.Background(), 5, 7, 99, RSVPGoing)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
