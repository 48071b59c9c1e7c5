package guilds

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const guildColumns = `id, name, slug, description, owner_id, default_role,
	plan, stripe_customer_id, stripe_subscription_id, stripe_price_id,
	current_period_end, trial_ends_at, pro_trial_used, stripe_event_at,
	created_at, updated_at`

func scanGuild(row pgx.Row) (Guild, error) {
	var (
		g                Guild
		customerID       pgtype.Text
		subscriptionID   pgtype.Text
		priceID          pgtype.Text
		currentPeriodEnd pgtype.Timestamptz
		trialEndsAt      pgtype.Timestamptz
		stripeEventAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&g.ID, &g.Name, &g.Slug, &g.Description, &g.OwnerID, &g.DefaultRole,
		&g.Subscription.Plan, &customerID, &subscriptionID, &priceID,
		&currentPeriodEnd, &trialEndsAt, &g.Subscription.ProTrialUsed, &stripeEventAt,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return Guild{}, err
	}
	g.Subscription.StripeCustomerID = customerID.String
	g.Subscription.StripeSubscriptionID = subscriptionID.String
	g.Subscription.StripePriceID = priceID.String
	if currentPeriodEnd.Valid {
		g.Subscription.CurrentPeriodEnd = currentPeriodEnd.Time
	}
	if trialEndsAt.Valid {
		g.Subscription.TrialEndsAt = trialEndsAt.Time
	}
	if stripeEventAt.Valid {
		g.Subscription.StripeEventAt = stripeEventAt.Time
	}
	return g, nil
}

// CreateGuild inserts the guild and its owner membership in one transaction.
// New guilds start on the free plan with no subscription fields.
func (r *Repository) CreateGuild(ctx context.Context, name, slug, description string, ownerID int64, defaultRole string) (Guild, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Guild{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `INSERT INTO guilds (name, slug, description, owner_id, default_role, plan)
		VALUES ($1, $2, $3, $4, $5, 'free')
		RETURNING `+guildColumns, name, slug, description, ownerID, defaultRole)
	g, err := scanGuild(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Guild{}, shared.ErrConflict
		}
		return Guild{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO guild_members (guild_id, user_id, role_name) VALUES ($1, $2, $3)`,
		g.ID, ownerID, defaultRole); err != nil {
		return Guild{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Guild{}, err
	}
	return g, nil
}

// GuildByID fetches one guild.
func (r *Repository) GuildByID(ctx context.Context, id int64) (Guild, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+guildColumns+` FROM guilds WHERE id = $1`, id)
	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Guild{}, shared.ErrNotFound
		}
		return Guild{}, err
	}
	return g, nil
}

// GuildByCustomerID resolves a guild through its Stripe customer reference.
func (r *Repository) GuildByCustomerID(ctx context.Context, customerID string) (Guild, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+guildColumns+` FROM guilds WHERE stripe_customer_id = $1`, customerID)
	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Guild{}, shared.ErrNotFound
		}
		return Guild{}, err
	}
	return g, nil
}

// ListGuildsForUser returns guilds the user owns or belongs to.
func (r *Repository) ListGuildsForUser(ctx context.Context, userID int64) ([]Guild, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+guildColumns+` FROM guilds
		WHERE owner_id = $1 OR id IN (SELECT guild_id FROM guild_members WHERE user_id = $1)
		ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guild
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateSettings changes mutable guild settings. Subscription columns and
// owner_id are never touched here.
func (r *Repository) UpdateSettings(ctx context.Context, id int64, name, description, defaultRole string) (Guild, error) {
	row := r.pool.QueryRow(ctx, `UPDATE guilds
		SET name = $2, description = $3, default_role = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+guildColumns, id, name, description, defaultRole)
	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Guild{}, shared.ErrNotFound
		}
		return Guild{}, err
	}
	return g, nil
}

// UpdateSubscription writes the full subscription state as absolute values.
// pro_trial_used only latches on: once true it never resets.
func (r *Repository) UpdateSubscription(ctx context.Context, id int64, sub Subscription) error {
	tag, err := r.pool.Exec(ctx, `UPDATE guilds SET
		plan = $2,
		stripe_subscription_id = NULLIF($3, ''),
		stripe_price_id = NULLIF($4, ''),
		current_period_end = $5,
		trial_ends_at = $6,
		pro_trial_used = pro_trial_used OR $7,
		stripe_event_at = $8,
		updated_at = NOW()
		WHERE id = $1`,
		id, sub.Plan, sub.StripeSubscriptionID, sub.StripePriceID,
		nullableTime(sub.CurrentPeriodEnd), nullableTime(sub.TrialEndsAt),
		sub.ProTrialUsed, nullableTime(sub.StripeEventAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetCustomerID persists a lazily provisioned Stripe customer reference.
func (r *Repository) SetCustomerID(ctx context.Context, id int64, customerID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE guilds SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// OwnerID returns the guild owner without loading the full record.
func (r *Repository) OwnerID(ctx context.Context, guildID int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM guilds WHERE id = $1`, guildID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return ownerID, nil
}

// RoleTable loads the guild's role table as evaluator input.
func (r *Repository) RoleTable(ctx context.Context, guildID int64) (perms.RoleTable, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, permissions FROM guild_roles WHERE guild_id = $1`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	table := perms.RoleTable{}
	for rows.Next() {
		var name string
		var rawPerms []string
		if err := rows.Scan(&name, &rawPerms); err != nil {
			return nil, err
		}
		granted := make([]perms.Permission, 0, len(rawPerms))
		for _, p := range rawPerms {
			granted = append(granted, perms.Permission(p))
		}
		table[name] = perms.Role{Permissions: granted}
	}
	return table, rows.Err()
}

// UpsertRole creates or replaces one role table entry.
func (r *Repository) UpsertRole(ctx context.Context, entry RoleEntry) error {
	rawPerms := make([]string, 0, len(entry.Permissions))
	for _, p := range entry.Permissions {
		rawPerms = append(rawPerms, string(p))
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO guild_roles (guild_id, name, permissions)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, name) DO UPDATE SET permissions = EXCLUDED.permissions, updated_at = NOW()`,
		entry.GuildID, entry.Name, rawPerms)
	return err
}

// DeleteRole removes a role table entry; member rows keep their role name
// which then simply resolves to no permissions.
func (r *Repository) DeleteRole(ctx context.Context, guildID int64, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM guild_roles WHERE guild_id = $1 AND name = $2`, guildID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListMembers returns the membership roster.
func (r *Repository) ListMembers(ctx context.Context, guildID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT guild_id, user_id, role_name, joined_at
		FROM guild_members WHERE guild_id = $1 ORDER BY joined_at`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GuildID, &m.UserID, &m.RoleName, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership row.
func (r *Repository) AddMember(ctx context.Context, guildID, userID int64, roleName string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO guild_members (guild_id, user_id, role_name) VALUES ($1, $2, $3)`,
		guildID, userID, roleName)
	if isUniqueViolation(err) {
		return shared.ErrConflict
	}
	return err
}

// RemoveMember deletes a membership row.
func (r *Repository) RemoveMember(ctx context.Context, guildID, userID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM guild_members WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MemberRole returns the role assigned to a user within the guild.
func (r *Repository) MemberRole(ctx context.Context, guildID, userID int64) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role_name FROM guild_members WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// AssignRole changes a member's role.
func (r *Repository) AssignRole(ctx context.Context, guildID, userID int64, roleName string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE guild_members SET role_name = $3 WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID, roleName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearLapsedTrials clears trial_ends_at on free guilds whose trial expired
// without conversion. pro_trial_used stays latched.
func (r *Repository) ClearLapsedTrials(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE guilds SET trial_ends_at = NULL, updated_at = NOW()
		WHERE plan = 'free' AND trial_ends_at IS NOT NULL AND trial_ends_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
