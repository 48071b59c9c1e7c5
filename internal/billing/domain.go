// Package billing keeps guild plan state consistent with the Stripe
// subscription lifecycle. Webhook deliveries are the only writer of
// subscription fields; every transition writes absolute values so duplicate
// delivery is harmless.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/guildhall/guildhall/internal/guilds"
)

var (
	// ErrMissingGuildRef marks an event without a guild reference in its
	// metadata. Surfaced as a processing failure so the provider retries.
	ErrMissingGuildRef = errors.New("billing: event missing guild reference")
	// ErrUnknownGuild marks an event whose guild reference does not resolve.
	// Terminal for that delivery: reported, acknowledged, never retried.
	ErrUnknownGuild = errors.New("billing: guild not found for event")
	// ErrNoCustomer rejects portal access for guilds never taken through checkout.
	ErrNoCustomer = errors.New("billing: guild has no billing customer")
	// ErrTrialUsed rejects a second free trial; pro_trial_used is monotonic.
	ErrTrialUsed = errors.New("billing: pro trial already used")
)

// GuildStore is the narrow persistence surface the reconciler mutates.
// Implemented by guilds.Repository.
type GuildStore interface {
	GuildByID(ctx context.Context, id int64) (guilds.Guild, error)
	GuildByCustomerID(ctx context.Context, customerID string) (guilds.Guild, error)
	UpdateSubscription(ctx context.Context, id int64, sub guilds.Subscription) error
	SetCustomerID(ctx context.Context, id int64, customerID string) error
}

// ProviderSubscription is the authoritative subscription record fetched from
// the billing provider during a transition.
type ProviderSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	CurrentPeriodEnd time.Time
}

// CheckoutParams collects inputs for a hosted checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	GuildID    int64
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider-hosted checkout reference handed back to
// the client.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is the outbound surface to the billing provider.
type Provider interface {
	Subscription(ctx context.Context, id string) (ProviderSubscription, error)
	CreateCustomer(ctx context.Context, name string, guildID int64) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
