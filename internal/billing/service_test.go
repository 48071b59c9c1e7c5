package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guildhall/guildhall/internal/guilds"
)

func testService(store *stubStore, provider *stubProvider) *Service {
	return NewService(store, provider, nil, ServiceConfig{
		SuccessURL:      "https://app.example/billing/success",
		CancelURL:       "https://app.example/billing/cancel",
		PortalReturnURL: "https://app.example/settings",
		TrialLength:     14 * 24 * time.Hour,
	})
}

func TestStartCheckoutProvisionsCustomer(t *testing.T) {
	store := newStubStore(freeGuild(1))
	svc := testService(store, &stubProvider{})

	sess, err := svc.StartCheckout(context.Background(), 1, 10, "price_pro")
	require.NoError(t, err)
	require.Equal(t, "cs_stub", sess.ID)
	require.NotEmpty(t, sess.URL)
	require.Equal(t, "cus_stub", store.guilds[1].Subscription.StripeCustomerID)
}

func TestStartCheckoutReusesCustomer(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_existing"))
	svc := testService(store, &stubProvider{})

	_, err := svc.StartCheckout(context.Background(), 1, 10, "price_pro")
	require.NoError(t, err)
	require.Equal(t, "cus_existing", store.guilds[1].Subscription.StripeCustomerID)
}

func TestPortalURLRequiresCustomer(t *testing.T) {
	store := newStubStore(freeGuild(1))
	svc := testService(store, &stubProvider{})

	_, err := svc.PortalURL(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoCustomer)
}

func TestPortalURL(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	svc := testService(store, &stubProvider{})

	url, err := svc.PortalURL(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "https://portal.example/cus_1", url)
}

func TestStartTrialOncePerGuild(t *testing.T) {
	store := newStubStore(freeGuild(1))
	svc := testService(store, &stubProvider{})

	endsAt, err := svc.StartTrial(context.Background(), 10, 1)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(14*24*time.Hour), endsAt, time.Minute)

	g := store.guilds[1]
	require.True(t, g.Subscription.ProTrialUsed)
	require.Equal(t, guilds.PlanFree, g.Subscription.Plan)

	_, err = svc.StartTrial(context.Background(), 10, 1)
	require.ErrorIs(t, err, ErrTrialUsed)
}

func TestStartTrialLatchSurvivesLapse(t *testing.T) {
	g := freeGuild(1)
	g.Subscription.ProTrialUsed = true
	g.Subscription.TrialEndsAt = time.Time{}
	store := newStubStore(g)
	svc := testService(store, &stubProvider{})

	_, err := svc.StartTrial(context.Background(), 10, 1)
	require.ErrorIs(t, err, ErrTrialUsed)
}
