package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/guildhall/guildhall/internal/audit"
)

// ServiceConfig carries the URLs and trial length the service hands to the
// provider.
type ServiceConfig struct {
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	TrialLength     time.Duration
}

// Service drives the user-initiated billing flows: checkout, portal access,
// and the one-shot free trial. Webhook-driven state lives in Reconciler.
type Service struct {
	store    GuildStore
	provider Provider
	audit    *audit.Recorder
	cfg      ServiceConfig
}

// NewService constructs a Service.
func NewService(store GuildStore, provider Provider, recorder *audit.Recorder, cfg ServiceConfig) *Service {
	return &Service{store: store, provider: provider, audit: recorder, cfg: cfg}
}

// StartCheckout lazily provisions a billing customer for the guild and opens
// a hosted checkout session for the requested price.
func (s *Service) StartCheckout(ctx context.Context, guildID, userID int64, priceID string) (CheckoutSession, error) {
	g, err := s.store.GuildByID(ctx, guildID)
	if err != nil {
		return CheckoutSession{}, err
	}

	customerID := g.Subscription.StripeCustomerID
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, g.Name, g.ID)
		if err != nil {
			return CheckoutSession{}, err
		}
		if err := s.store.SetCustomerID(ctx, g.ID, customerID); err != nil {
			return CheckoutSession{}, err
		}
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		GuildID:    g.ID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  userID,
		GuildID:  g.ID,
		Action:   "billing.checkout_started",
		Entity:   "guilds",
		EntityID: strconv.FormatInt(g.ID, 10),
		Meta:     map[string]any{"price_id": priceID},
	})
	return sess, nil
}

// PortalURL returns a provider-hosted billing portal link. The guild must
// already have a billing customer.
func (s *Service) PortalURL(ctx context.Context, guildID int64) (string, error) {
	g, err := s.store.GuildByID(ctx, guildID)
	if err != nil {
		return "", err
	}
	if g.Subscription.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.provider.CreatePortalSession(ctx, g.Subscription.StripeCustomerID, s.cfg.PortalReturnURL)
}

// StartTrial begins the guild's single free pro trial. pro_trial_used
// latches on here and is never reset, even after the trial lapses.
func (s *Service) StartTrial(ctx context.Context, actorID, guildID int64) (time.Time, error) {
	g, err := s.store.GuildByID(ctx, guildID)
	if err != nil {
		return time.Time{}, err
	}
	if g.Subscription.ProTrialUsed {
		return time.Time{}, ErrTrialUsed
	}
	endsAt := time.Now().Add(s.cfg.TrialLength).UTC()
	next := g.Subscription
	next.TrialEndsAt = endsAt
	next.ProTrialUsed = true
	if err := s.store.UpdateSubscription(ctx, g.ID, next); err != nil {
		return time.Time{}, err
	}
	s.audit.Try(ctx, audit.Entry{
		ActorID:  actorID,
		GuildID:  g.ID,
		Action:   "billing.trial_started",
		Entity:   "guilds",
		EntityID: strconv.FormatInt(g.ID, 10),
		Meta:     map[string]any{"trial_ends_at": endsAt},
	})
	return endsAt, nil
}
