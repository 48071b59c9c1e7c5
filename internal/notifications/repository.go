package notifications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/shared"
)

// Repository provides PostgreSQL backed persistence for notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one notification.
func (r *Repository) Insert(ctx context.Context, n Notification) (Notification, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO notifications (user_id, kind, title, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		n.UserID, n.Kind, n.Title, n.Body)
	if err := row.Scan(&n.ID, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListForUser returns the user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, user_id, kind, title, body, read_at, created_at
		FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 200`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var (
			n      Notification
			readAt pgtype.Timestamptz
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			n.ReadAt = readAt.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = now()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing, someone else's, or already read.
		row := r.pool.QueryRow(ctx, `SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
		var one int
		if scanErr := row.Scan(&one); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return scanErr
		}
	}
	return nil
}

// MarkAllRead marks everything unread for the user.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = now()
		WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
