package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/require"

	"github.com/guildhall/guildhall/internal/guilds"
	"github.com/guildhall/guildhall/internal/shared"
)

type stubStore struct {
	guilds      map[int64]guilds.Guild
	updateCalls int
}

func newStubStore(gs ...guilds.Guild) *stubStore {
	s := &stubStore{guilds: map[int64]guilds.Guild{}}
	for _, g := range gs {
		s.guilds[g.ID] = g
	}
	return s
}

func (s *stubStore) GuildByID(ctx context.Context, id int64) (guilds.Guild, error) {
	g, ok := s.guilds[id]
	if !ok {
		return guilds.Guild{}, shared.ErrNotFound
	}
	return g, nil
}

func (s *stubStore) GuildByCustomerID(ctx context.Context, customerID string) (guilds.Guild, error) {
	for _, g := range s.guilds {
		if g.Subscription.StripeCustomerID == customerID {
			return g, nil
		}
	}
	return guilds.Guild{}, shared.ErrNotFound
}

func (s *stubStore) UpdateSubscription(ctx context.Context, id int64, sub guilds.Subscription) error {
	g, ok := s.guilds[id]
	if !ok {
		return shared.ErrNotFound
	}
	// pro_trial_used latches on, mirroring the SQL write.
	sub.ProTrialUsed = sub.ProTrialUsed || g.Subscription.ProTrialUsed
	sub.StripeCustomerID = g.Subscription.StripeCustomerID
	g.Subscription = sub
	s.guilds[id] = g
	s.updateCalls++
	return nil
}

func (s *stubStore) SetCustomerID(ctx context.Context, id int64, customerID string) error {
	g, ok := s.guilds[id]
	if !ok {
		return shared.ErrNotFound
	}
	g.Subscription.StripeCustomerID = customerID
	s.guilds[id] = g
	return nil
}

type stubProvider struct {
	subs map[string]ProviderSubscription
}

func (p *stubProvider) Subscription(ctx context.Context, id string) (ProviderSubscription, error) {
	ps, ok := p.subs[id]
	if !ok {
		return ProviderSubscription{}, fmt.Errorf("stub: no subscription %s", id)
	}
	return ps, nil
}

func (p *stubProvider) CreateCustomer(ctx context.Context, name string, guildID int64) (string, error) {
	return "cus_stub", nil
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	return CheckoutSession{ID: "cs_stub", URL: "https://checkout.example/cs_stub"}, nil
}

func (p *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

func testLogger() *slog.Logger { return slog.Default() }

func makeEvent(t *testing.T, eventType string, created time.Time, object map[string]any) *stripelib.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripelib.Event{
		ID:      "evt_test",
		Type:    stripelib.EventType(eventType),
		Created: created.Unix(),
		Data:    &stripelib.EventData{Raw: raw},
	}
}

func freeGuild(id int64) guilds.Guild {
	return guilds.Guild{ID: id, Name: "Iron Vanguard", OwnerID: 1, Subscription: guilds.Subscription{Plan: guilds.PlanFree}}
}

func proGuild(id int64, customerID string) guilds.Guild {
	return guilds.Guild{
		ID: id, Name: "Iron Vanguard", OwnerID: 1,
		Subscription: guilds.Subscription{
			Plan:                 guilds.PlanPro,
			StripeCustomerID:     customerID,
			StripeSubscriptionID: "sub_1",
			StripePriceID:        "price_pro",
			CurrentPeriodEnd:     time.Now().Add(20 * 24 * time.Hour),
			ProTrialUsed:         true,
		},
	}
}

func periodEnd() time.Time {
	return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
}

func requireInvariant(t *testing.T, g guilds.Guild) {
	t.Helper()
	pro := g.Subscription.Plan == guilds.PlanPro
	hasIDs := g.Subscription.StripeSubscriptionID != "" && g.Subscription.StripePriceID != ""
	require.Equal(t, pro, hasIDs, "plan/pro fields invariant violated: %+v", g.Subscription)
}

func TestCheckoutCompletedActivatesPro(t *testing.T) {
	store := newStubStore(freeGuild(1))
	provider := &stubProvider{subs: map[string]ProviderSubscription{
		"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro", CurrentPeriodEnd: periodEnd()},
	}}
	rec := NewReconciler(store, provider, testLogger())

	event := makeEvent(t, "checkout.session.completed", time.Now(), map[string]any{
		"id":           "cs_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"guildId": "1"},
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))

	g := store.guilds[1]
	require.Equal(t, guilds.PlanPro, g.Subscription.Plan)
	require.Equal(t, "sub_1", g.Subscription.StripeSubscriptionID)
	require.Equal(t, "price_pro", g.Subscription.StripePriceID)
	require.Equal(t, "cus_1", g.Subscription.StripeCustomerID)
	require.Equal(t, periodEnd(), g.Subscription.CurrentPeriodEnd)
	require.True(t, g.Subscription.ProTrialUsed)
	require.True(t, g.Subscription.TrialEndsAt.IsZero())
	requireInvariant(t, g)
}

func TestCheckoutCompletedClearsRunningTrial(t *testing.T) {
	g := freeGuild(1)
	g.Subscription.TrialEndsAt = time.Now().Add(5 * 24 * time.Hour)
	store := newStubStore(g)
	provider := &stubProvider{subs: map[string]ProviderSubscription{
		"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro", CurrentPeriodEnd: periodEnd()},
	}}
	rec := NewReconciler(store, provider, testLogger())

	event := makeEvent(t, "checkout.session.completed", time.Now(), map[string]any{
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"guildId": "1"},
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))
	require.True(t, store.guilds[1].Subscription.TrialEndsAt.IsZero())
}

func TestCheckoutCompletedMissingGuildRef(t *testing.T) {
	store := newStubStore(freeGuild(1))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "checkout.session.completed", time.Now(), map[string]any{
		"customer":     "cus_1",
		"subscription": "sub_1",
	})
	err := rec.HandleEvent(context.Background(), event)
	require.ErrorIs(t, err, ErrMissingGuildRef)
	require.Equal(t, 0, store.updateCalls)
	require.Equal(t, guilds.PlanFree, store.guilds[1].Subscription.Plan)
}

func TestCheckoutCompletedUnknownGuildIsTerminal(t *testing.T) {
	store := newStubStore(freeGuild(1))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "checkout.session.completed", time.Now(), map[string]any{
		"subscription": "sub_1",
		"metadata":     map[string]string{"guildId": "999"},
	})
	err := rec.HandleEvent(context.Background(), event)
	require.ErrorIs(t, err, ErrUnknownGuild)
	require.Equal(t, 0, store.updateCalls)
}

func TestSubscriptionUpdatedActiveIsIdempotent(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	provider := &stubProvider{subs: map[string]ProviderSubscription{
		"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro", CurrentPeriodEnd: periodEnd()},
	}}
	rec := NewReconciler(store, provider, testLogger())

	event := makeEvent(t, "customer.subscription.updated", time.Now(), map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "active",
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))
	first := store.guilds[1]

	require.NoError(t, rec.HandleEvent(context.Background(), event))
	second := store.guilds[1]

	require.Equal(t, first.Subscription, second.Subscription)
	requireInvariant(t, second)
}

func TestSubscriptionUpdatedNonActiveDowngrades(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "customer.subscription.updated", time.Now(), map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "canceled",
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))

	g := store.guilds[1]
	require.Equal(t, guilds.PlanFree, g.Subscription.Plan)
	require.Empty(t, g.Subscription.StripeSubscriptionID)
	require.Empty(t, g.Subscription.StripePriceID)
	require.True(t, g.Subscription.CurrentPeriodEnd.IsZero())
	require.True(t, g.Subscription.ProTrialUsed, "pro_trial_used must never reset")
	requireInvariant(t, g)
}

func TestSubscriptionDeletedDowngrades(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "customer.subscription.deleted", time.Now(), map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "canceled",
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))

	g := store.guilds[1]
	require.Equal(t, guilds.PlanFree, g.Subscription.Plan)
	require.Empty(t, g.Subscription.StripeSubscriptionID)
	require.Empty(t, g.Subscription.StripePriceID)
	requireInvariant(t, g)
}

func TestInvoicePaymentSucceededRefreshes(t *testing.T) {
	g := proGuild(1, "cus_1")
	store := newStubStore(g)
	provider := &stubProvider{subs: map[string]ProviderSubscription{
		"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro_v2", CurrentPeriodEnd: periodEnd()},
	}}
	rec := NewReconciler(store, provider, testLogger())

	event := makeEvent(t, "invoice.payment_succeeded", time.Now(), map[string]any{
		"customer":     "cus_1",
		"subscription": "sub_1",
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))

	got := store.guilds[1]
	require.Equal(t, guilds.PlanPro, got.Subscription.Plan)
	require.Equal(t, "price_pro_v2", got.Subscription.StripePriceID)
	require.Equal(t, periodEnd(), got.Subscription.CurrentPeriodEnd)
	requireInvariant(t, got)
}

func TestInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "invoice.payment_succeeded", time.Now(), map[string]any{
		"customer": "cus_1",
	})
	require.NoError(t, rec.HandleEvent(context.Background(), event))
	require.Equal(t, 0, store.updateCalls)
}

func TestOutOfOrderEventIsSkipped(t *testing.T) {
	g := proGuild(1, "cus_1")
	g.Subscription.StripeEventAt = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore(g)
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	stale := makeEvent(t, "customer.subscription.deleted",
		time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC), map[string]any{
			"id":       "sub_1",
			"customer": "cus_1",
			"status":   "canceled",
		})
	require.NoError(t, rec.HandleEvent(context.Background(), stale))
	require.Equal(t, 0, store.updateCalls)
	require.Equal(t, guilds.PlanPro, store.guilds[1].Subscription.Plan)
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	store := newStubStore(freeGuild(1))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "customer.created", time.Now(), map[string]any{"id": "cus_1"})
	require.NoError(t, rec.HandleEvent(context.Background(), event))
	require.Equal(t, 0, store.updateCalls)
}

func TestEventForUnknownCustomerIsTerminal(t *testing.T) {
	store := newStubStore(freeGuild(1))
	rec := NewReconciler(store, &stubProvider{}, testLogger())

	event := makeEvent(t, "customer.subscription.deleted", time.Now(), map[string]any{
		"id":       "sub_9",
		"customer": "cus_unknown",
		"status":   "canceled",
	})
	require.ErrorIs(t, rec.HandleEvent(context.Background(), event), ErrUnknownGuild)
}
