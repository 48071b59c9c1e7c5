package guilds

import (
	"time"

	"github.com/guildhall/guildhall/internal/perms"
)

// Plan names a billing tier.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Subscription carries the billing state attached to a guild. The invariant
// is plan==pro iff StripeSubscriptionID and StripePriceID are both set; a
// free guild has all three subscription-identifying fields cleared. These
// fields are written exclusively by the billing reconciler.
type Subscription struct {
	Plan                 Plan
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	CurrentPeriodEnd     time.Time
	TrialEndsAt          time.Time
	ProTrialUsed         bool
	// StripeEventAt tracks the provider-side creation time of the last
	// applied billing event, guarding against out-of-order delivery.
	StripeEventAt time.Time
}

// Guild is the aggregate root. OwnerID is set at creation and immutable.
type Guild struct {
	ID           int64
	Name         string
	Slug         string
	Description  string
	OwnerID      int64
	DefaultRole  string
	Subscription Subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Member links a user to a guild with at most one role. A user without a
// member row (and who is not the owner) has no permissions.
type Member struct {
	GuildID  int64
	UserID   int64
	RoleName string
	JoinedAt time.Time
}

// RoleEntry is a persisted row of the guild role table.
type RoleEntry struct {
	GuildID     int64
	Name        string
	Permissions []perms.Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
