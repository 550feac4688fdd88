// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements the Stripe webhook endpoint.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// Webhook routes are PUBLIC (no auth middleware) because the providers
// call them directly. Authentication is the delivery signature.
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/service"
)

// maxWebhookBody caps webhook payload reads (64KB).
const maxWebhookBody = 65536

// WebhookHandler handles incoming billing events from both payment
// providers. Each endpoint verifies the delivery, normalizes the payload
// into the shared event shape, and hands it to the reconcile service;
// no account mutation happens in this package.
type WebhookHandler struct {
	stripe    billing.StripeService
	paystack  billing.PaystackService
	reconcile service.ReconcileService
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. stripe and paystack
// may each be nil when that provider is not configured; the matching
// endpoint then acknowledges deliveries without processing them.
func NewWebhookHandler(
	stripe billing.StripeService,
	paystack billing.PaystackService,
	reconcile service.ReconcileService,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		stripe:    stripe,
		paystack:  paystack,
		reconcile: reconcile,
		logger:    logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC, no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
	mux.HandleFunc("POST /webhooks/paystack", h.HandlePaystackWebhook)
}

// HandleStripeWebhook processes an incoming Stripe delivery.
//
// Response codes drive Stripe's redelivery behavior:
//   - 400 for a bad signature or a payload missing correlation data;
//     redelivering the same bytes can never succeed.
//   - 200 for event kinds this subsystem ignores, and for processed
//     events (including unmatched ones; the delivery itself was valid).
//   - 500 when persistence failed, so Stripe redelivers.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		h.logger.Warn("stripe webhook received but stripe is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.stripe.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("stripe webhook signature verification failed", "error", err)
		metrics.WebhookSignatureFailures.WithLabelValues(string(billing.ProviderStripe)).Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ev, ok, err := h.stripe.NormalizeEvent(event)
	if err != nil {
		// Recognized kind but the payload lacks the data needed to
		// correlate it to an account. Redelivery cannot fix the payload.
		h.logger.Warn("stripe event missing correlation data",
			"type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconcile.Process(r.Context(), ev, body); err != nil {
		h.logger.Error("failed to process stripe event",
			"error", err,
			"kind", ev.Kind,
			"event_id", ev.ID,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
