package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/metrics"
)

// HandlePaystackWebhook processes an incoming Paystack charge delivery.
//
// Paystack signs the raw body with HMAC-SHA256 and sends the hex digest
// in X-Paystack-Signature. A bad signature gets 403 and nothing else
// happens. Non-success charges are acknowledged without processing.
// A success charge without an account reference is a 400 because
// redelivering the same payload can never succeed. A persistence
// failure is a 500 so Paystack redelivers.
func (h *WebhookHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	if h.paystack == nil {
		h.logger.Warn("paystack webhook received but paystack is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Paystack-Signature")
	if !h.paystack.VerifySignature(body, signature) {
		h.logger.Warn("paystack webhook signature verification failed")
		metrics.WebhookSignatureFailures.WithLabelValues(string(billing.ProviderPaystack)).Inc()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	ev, ok, err := h.paystack.ParseEvent(body)
	if err != nil {
		if errors.Is(err, billing.ErrMissingAccountRef) {
			h.logger.Warn("paystack success charge has no account reference", "error", err)
		} else {
			h.logger.Warn("failed to parse paystack event", "error", err)
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("paystack webhook received", "kind", ev.Kind, "event_id", ev.ID)

	if err := h.reconcile.Process(r.Context(), ev, body); err != nil {
		h.logger.Error("failed to process paystack event",
			"error", err,
			"kind", ev.Kind,
			"event_id", ev.ID,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}
