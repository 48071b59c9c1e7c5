package achievements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/shared"
)

// Repository provides PostgreSQL backed persistence for achievements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const definitionColumns = `id, guild_id, name, description, points, created_at`

func scanDefinition(row pgx.Row) (Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.GuildID, &d.Name, &d.Description, &d.Points, &d.CreatedAt)
	if err != nil {
		return Definition{}, err
	}
	return d, nil
}

// CreateDefinition inserts an achievement. Names are unique per guild.
func (r *Repository) CreateDefinition(ctx context.Context, d Definition) (Definition, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO achievements (guild_id, name, description, points)
		VALUES ($1, $2, $3, $4)
		RETURNING `+definitionColumns,
		d.GuildID, d.Name, d.Description, d.Points)
	created, err := scanDefinition(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Definition{}, shared.ErrConflict
		}
		return Definition{}, err
	}
	return created, nil
}

// DefinitionByID fetches one achievement scoped to its guild.
func (r *Repository) DefinitionByID(ctx context.Context, guildID, id int64) (Definition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+definitionColumns+` FROM achievements
		WHERE id = $1 AND guild_id = $2`, id, guildID)
	d, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Definition{}, shared.ErrNotFound
		}
		return Definition{}, err
	}
	return d, nil
}

// ListDefinitions returns the guild's achievements.
func (r *Repository) ListDefinitions(ctx context.Context, guildID int64) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+definitionColumns+` FROM achievements
		WHERE guild_id = $1 ORDER BY points DESC, name ASC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Definition, 0)
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertAward records an award. Awarding the same achievement twice to the
// same member is a conflict.
func (r *Repository) InsertAward(ctx context.Context, a Award) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO achievement_awards (achievement_id, user_id, awarded_by)
		VALUES ($1, $2, $3)`,
		a.AchievementID, a.UserID, a.AwardedBy)
	if isUniqueViolation(err) {
		return shared.ErrConflict
	}
	return err
}

// ListAwards returns all awards for one achievement.
func (r *Repository) ListAwards(ctx context.Context, achievementID int64) ([]Award, error) {
	rows, err := r.pool.Query(ctx, `SELECT achievement_id, user_id, awarded_by, awarded_at
		FROM achievement_awards WHERE achievement_id = $1 ORDER BY awarded_at ASC`, achievementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

// ListMemberAwards returns a member's awards across one guild.
func (r *Repository) ListMemberAwards(ctx context.Context, guildID, userID int64) ([]Award, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.achievement_id, a.user_id, a.awarded_by, a.awarded_at
		FROM achievement_awards a
		JOIN achievements d ON d.id = a.achievement_id
		WHERE d.guild_id = $1 AND a.user_id = $2
		ORDER BY a.awarded_at ASC`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

func collectAwards(rows pgx.Rows) ([]Award, error) {
	out := make([]Award, 0)
	for rows.Next() {
		var a Award
		if err := rows.Scan(&a.AchievementID, &a.UserID, &a.AwardedBy, &a.AwardedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
