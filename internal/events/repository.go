package events

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/shared"
)

// Repository provides PostgreSQL backed persistence for events and RSVPs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, guild_id, title, description, starts_at, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.GuildID, &e.Title, &e.Description, &e.StartsAt,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e Event) (Event, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO guild_events (guild_id, title, description, starts_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+eventColumns,
		e.GuildID, e.Title, e.Description, e.StartsAt, e.CreatedBy)
	return scanEvent(row)
}

// ByID fetches one event scoped to its guild.
func (r *Repository) ByID(ctx context.Context, guildID, eventID int64) (Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM guild_events
		WHERE id = $1 AND guild_id = $2`, eventID, guildID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, shared.ErrNotFound
		}
		return Event{}, err
	}
	return e, nil
}

// ListByGuild returns the guild's events, soonest first.
func (r *Repository) ListByGuild(ctx context.Context, guildID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM guild_events
		WHERE guild_id = $1 ORDER BY starts_at ASC, id ASC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertRSVP records or replaces a member's answer.
func (r *Repository) UpsertRSVP(ctx context.Context, rsvp RSVP) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO event_rsvps (event_id, user_id, status, responded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (event_id, user_id) DO UPDATE SET status = EXCLUDED.status, responded_at = now()`,
		rsvp.EventID, rsvp.UserID, rsvp.Status)
	return err
}

// ListRSVPs returns the answers for one event.
func (r *Repository) ListRSVPs(ctx context.Context, eventID int64) ([]RSVP, error) {
	rows, err := r.pool.Query(ctx, `SELECT event_id, user_id, status, responded_at
		FROM event_rsvps WHERE event_id = $1 ORDER BY responded_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RSVP, 0)
	for rows.Next() {
		var rsvp RSVP
		if err := rows.Scan(&rsvp.EventID, &rsvp.UserID, &rsvp.Status, &rsvp.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, rsvp)
	}
	return out, rows.Err()
}
