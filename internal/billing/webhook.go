package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/guildhall/guildhall/internal/platform/httpx"
)

const webhookBodyLimit = 1 << 20 // 1 MiB

// WebhookHandler terminates Stripe webhook deliveries. Signature
// verification happens first, before any payload inspection; an unverified
// delivery never reaches the reconciler.
type WebhookHandler struct {
	secret     string
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewWebhookHandler constructs the webhook endpoint.
func NewWebhookHandler(secret string, reconciler *Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, reconciler: reconciler, logger: logger}
}

type webhookReceived struct {
	Received bool `json:"received"`
}

// ServeHTTP verifies the delivery and applies it. Processing failures answer
// 500 so the provider redelivers; terminal failures (unknown guild) are
// logged and acknowledged to stop the retry storm.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		httpx.Problem(w, http.StatusServiceUnavailable, "webhook secret not configured", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "failed to read request body", "")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.Problem(w, http.StatusBadRequest, "missing signature", "")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid signature", "")
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), &event); err != nil {
		if errors.Is(err, ErrUnknownGuild) {
			h.logger.Error("billing event dropped",
				slog.String("event_id", event.ID),
				slog.String("type", string(event.Type)),
				slog.Any("error", err))
			httpx.JSON(w, http.StatusOK, webhookReceived{Received: true})
			return
		}
		h.logger.Error("billing event processing failed",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "processing failed", "")
		return
	}

	httpx.JSON(w, http.StatusOK, webhookReceived{Received: true})
}
