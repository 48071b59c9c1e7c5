package billing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/require"

	"github.com/guildhall/guildhall/internal/guilds"
)

const testWebhookSecret = "whsec_test"

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func eventBody(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"id":      "evt_test",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return body
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	store := newStubStore(freeGuild(1))
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store, &stubProvider{}, testLogger()), testLogger())

	body := eventBody(t, "customer.subscription.deleted", map[string]any{
		"id": "sub_1", "customer": "cus_1", "status": "canceled",
	})
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 0, store.updateCalls)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := newStubStore(proGuild(1, "cus_1"))
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store, &stubProvider{}, testLogger()), testLogger())

	body := eventBody(t, "customer.subscription.deleted", map[string]any{
		"id": "sub_1", "customer": "cus_1", "status": "canceled",
	})
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 0, store.updateCalls)
	require.Equal(t, guilds.PlanPro, store.guilds[1].Subscription.Plan)
}

func TestWebhookAppliesSignedCheckout(t *testing.T) {
	store := newStubStore(freeGuild(1))
	provider := &stubProvider{subs: map[string]ProviderSubscription{
		"sub_1": {ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro", CurrentPeriodEnd: periodEnd()},
	}}
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store, provider, testLogger()), testLogger())

	body := eventBody(t, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"guildId": "1"},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest(t, body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())
	require.Equal(t, guilds.PlanPro, store.guilds[1].Subscription.Plan)
}

func TestWebhookMissingGuildRefRetries(t *testing.T) {
	store := newStubStore(freeGuild(1))
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store, &stubProvider{}, testLogger()), testLogger())

	body := eventBody(t, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest(t, body))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, 0, store.updateCalls)
}

func TestWebhookUnknownGuildIsAcknowledged(t *testing.T) {
	store := newStubStore(freeGuild(1))
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store, &stubProvider{}, testLogger()), testLogger())

	body := eventBody(t, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"guildId": "42"},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest(t, body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 0, store.updateCalls)
}

func TestWebhookWithoutSecretUnavailable(t *testing.T) {
	h := NewWebhookHandler("", nil, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
