package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/shared"
)

// Reconciler applies verified billing events to guild subscription state.
// Deliveries are at-least-once and may arrive out of order; transitions set
// absolute values and skip events older than the last applied one.
type Reconciler struct {
	store    GuildStore
	provider Provider
	logger   *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store GuildStore, provider Provider, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, provider: provider, logger: logger}
}

// GuildMetadataKey carries the guild id into checkout session metadata.
const GuildMetadataKey = "guildId"

type checkoutPayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

type invoicePayload struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionID() string {
	if s := strings.TrimSpace(p.Subscription); s != "" {
		return s
	}
	return strings.TrimSpace(p.Parent.SubscriptionDetails.Subscription)
}

// HandleEvent dispatches one verified provider event.
func (r *Reconciler) HandleEvent(ctx context.Context, event *stripelib.Event) error {
	eventAt := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		var payload checkoutPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return fmt.Errorf("billing: decode checkout session: %w", err)
		}
		return r.handleCheckoutCompleted(ctx, payload, eventAt)

	case "invoice.payment_succeeded":
		var payload invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return fmt.Errorf("billing: decode invoice: %w", err)
		}
		return r.handleInvoicePaid(ctx, payload, eventAt)

	case "customer.subscription.updated":
		var payload subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return fmt.Errorf("billing: decode subscription: %w", err)
		}
		return r.handleSubscriptionUpdated(ctx, payload, eventAt)

	case "customer.subscription.deleted":
		var payload subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return fmt.Errorf("billing: decode subscription: %w", err)
		}
		return r.handleSubscriptionDeleted(ctx, payload, eventAt)

	default:
		r.logger.Info("billing event ignored",
			slog.String("type", string(event.Type)),
			slog.String("event_id", event.ID))
		return nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, payload checkoutPayload, eventAt time.Time) error {
	guildID, err := guildIDFromMetadata(payload.Metadata)
	if err != nil {
		return err
	}
	g, err := r.store.GuildByID(ctx, guildID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: guild %d", ErrUnknownGuild, guildID)
		}
		return err
	}
	if r.stale(g, eventAt) {
		return nil
	}

	ps, err := r.provider.Subscription(ctx, payload.Subscription)
	if err != nil {
		return fmt.Errorf("billing: fetch subscription %s: %w", payload.Subscription, err)
	}

	customerID := strings.TrimSpace(payload.Customer)
	if customerID == "" {
		customerID = ps.CustomerID
	}
	if customerID != "" && customerID != g.Subscription.StripeCustomerID {
		if err := r.store.SetCustomerID(ctx, g.ID, customerID); err != nil {
			return err
		}
	}

	next := g.Subscription
	next.Plan = guilds.PlanPro
	next.StripeSubscriptionID = ps.ID
	next.StripePriceID = ps.PriceID
	next.CurrentPeriodEnd = ps.CurrentPeriodEnd
	next.TrialEndsAt = time.Time{}
	next.ProTrialUsed = true
	next.StripeEventAt = eventAt
	return r.store.UpdateSubscription(ctx, g.ID, next)
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, payload invoicePayload, eventAt time.Time) error {
	subID := payload.subscriptionID()
	if subID == "" {
		// One-off invoices carry no subscription; nothing to reconcile.
		return nil
	}
	g, err := r.guildForCustomer(ctx, payload.Customer)
	if err != nil {
		return err
	}
	if r.stale(g, eventAt) {
		return nil
	}
	ps, err := r.provider.Subscription(ctx, subID)
	if err != nil {
		return fmt.Errorf("billing: fetch subscription %s: %w", subID, err)
	}

	next := g.Subscription
	next.Plan = guilds.PlanPro
	next.StripeSubscriptionID = ps.ID
	next.StripePriceID = ps.PriceID
	next.CurrentPeriodEnd = ps.CurrentPeriodEnd
	next.TrialEndsAt = time.Time{}
	next.StripeEventAt = eventAt
	return r.store.UpdateSubscription(ctx, g.ID, next)
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, payload subscriptionPayload, eventAt time.Time) error {
	g, err := r.guildForCustomer(ctx, payload.Customer)
	if err != nil {
		return err
	}
	if r.stale(g, eventAt) {
		return nil
	}

	if payload.Status != string(stripelib.SubscriptionStatusActive) {
		return r.downgrade(ctx, g, eventAt)
	}

	ps, err := r.provider.Subscription(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("billing: fetch subscription %s: %w", payload.ID, err)
	}
	next := g.Subscription
	next.Plan = guilds.PlanPro
	next.StripeSubscriptionID = ps.ID
	next.StripePriceID = ps.PriceID
	next.CurrentPeriodEnd = ps.CurrentPeriodEnd
	next.TrialEndsAt = time.Time{}
	next.StripeEventAt = eventAt
	return r.store.UpdateSubscription(ctx, g.ID, next)
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, payload subscriptionPayload, eventAt time.Time) error {
	g, err := r.guildForCustomer(ctx, payload.Customer)
	if err != nil {
		return err
	}
	if r.stale(g, eventAt) {
		return nil
	}
	return r.downgrade(ctx, g, eventAt)
}

func (r *Reconciler) downgrade(ctx context.Context, g guilds.Guild, eventAt time.Time) error {
	next := g.Subscription
	next.Plan = guilds.PlanFree
	next.StripeSubscriptionID = ""
	next.StripePriceID = ""
	next.CurrentPeriodEnd = time.Time{}
	next.StripeEventAt = eventAt
	return r.store.UpdateSubscription(ctx, g.ID, next)
}

func (r *Reconciler) guildForCustomer(ctx context.Context, customerID string) (guilds.Guild, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return guilds.Guild{}, ErrMissingGuildRef
	}
	g, err := r.store.GuildByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return guilds.Guild{}, fmt.Errorf("%w: customer %s", ErrUnknownGuild, customerID)
		}
		return guilds.Guild{}, err
	}
	return g, nil
}

// stale reports whether the event predates the last applied one for this
// guild. Skipped events are logged; last-write-wins is otherwise accepted.
func (r *Reconciler) stale(g guilds.Guild, eventAt time.Time) bool {
	last := g.Subscription.StripeEventAt
	if last.IsZero() || !eventAt.Before(last) {
		return false
	}
	r.logger.Warn("billing event out of order, skipped",
		slog.Int64("guild_id", g.ID),
		slog.Time("event_at", eventAt),
		slog.Time("last_applied", last))
	return true
}

func guildIDFromMetadata(metadata map[string]string) (int64, error) {
	raw := strings.TrimSpace(metadata[GuildMetadataKey])
	if raw == "" {
		return 0, ErrMissingGuildRef
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad guild id %q", ErrMissingGuildRef, raw)
	}
	return id, nil
}
