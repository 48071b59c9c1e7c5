package applications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/shared"
)

// Repository provides PostgreSQL backed persistence for applications.
// A partial unique index on (guild_id, user_id) WHERE status = 'pending'
// enforces one open application per guild per user.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const applicationColumns = `id, guild_id, user_id, message, status, decided_by, decided_at, created_at`

func scanApplication(row pgx.Row) (Application, error) {
	var (
		a         Application
		decidedBy pgtype.Int8
		decidedAt pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.GuildID, &a.UserID, &a.Message, &a.Status,
		&decidedBy, &decidedAt, &a.CreatedAt)
	if err != nil {
		return Application{}, err
	}
	a.DecidedBy = decidedBy.Int64
	if decidedAt.Valid {
		a.DecidedAt = decidedAt.Time
	}
	return a, nil
}

// Create inserts a pending application.
func (r *Repository) Create(ctx context.Context, guildID, userID int64, message string) (Application, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO guild_applications (guild_id, user_id, message, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING `+applicationColumns,
		guildID, userID, message)
	a, err := scanApplication(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Application{}, shared.ErrConflict
		}
		return Application{}, err
	}
	return a, nil
}

// ByID fetches one application scoped to its guild.
func (r *Repository) ByID(ctx context.Context, guildID, id int64) (Application, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM guild_applications
		WHERE id = $1 AND guild_id = $2`, id, guildID)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, shared.ErrNotFound
		}
		return Application{}, err
	}
	return a, nil
}

// ListPending returns the guild's open applications, oldest first.
func (r *Repository) ListPending(ctx context.Context, guildID int64) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+applicationColumns+` FROM guild_applications
		WHERE guild_id = $1 AND status = 'pending' ORDER BY created_at ASC, id ASC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Decide moves a pending application to its final status. The WHERE clause
// guards the transition; deciding anything not pending affects zero rows.
func (r *Repository) Decide(ctx context.Context, guildID, id, decidedBy int64, status string) (Application, error) {
	row := r.pool.QueryRow(ctx, `UPDATE guild_applications
		SET status = $4, decided_by = $5, decided_at = now()
		WHERE id = $1 AND guild_id = $2 AND status = $3
		RETURNING `+applicationColumns,
		id, guildID, StatusPending, status, decidedBy)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, shared.ErrNotFound
		}
		return Application{}, err
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
