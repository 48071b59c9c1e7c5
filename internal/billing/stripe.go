package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct{}

// NewStripeProvider configures the Stripe SDK and returns the provider.
func NewStripeProvider(apiKey string) *StripeProvider {
	stripelib.Key = apiKey
	return &StripeProvider{}
}

// Subscription fetches the authoritative subscription record.
func (StripeProvider) Subscription(ctx context.Context, id string) (ProviderSubscription, error) {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("stripe: get subscription: %w", err)
	}
	ps := ProviderSubscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Customer != nil {
		ps.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			ps.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			ps.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return ps, nil
}

// CreateCustomer provisions a billing customer tagged with the guild id.
func (StripeProvider) CreateCustomer(ctx context.Context, name string, guildID int64) (string, error) {
	params := &stripelib.CustomerParams{
		Name: stripelib.String(name),
	}
	params.Context = ctx
	params.AddMetadata(GuildMetadataKey, strconv.FormatInt(guildID, 10))
	cus, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cus.ID, nil
}

// CreateCheckoutSession opens a subscription-mode hosted checkout.
func (StripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		Customer:   stripelib.String(p.CustomerID),
		SuccessURL: stripelib.String(p.SuccessURL),
		CancelURL:  stripelib.String(p.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(p.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(GuildMetadataKey, strconv.FormatInt(p.GuildID, 10))
	sess, err := checkoutsession.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession opens the provider-hosted self-service portal.
func (StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(customerID),
		ReturnURL: stripelib.String(returnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return sess.URL, nil
}
