package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/savora/api/internal/platform/httpx"
	"github.com/savora/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives payment provider callbacks.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if err := h.payments.HandleWebhook(ctx, body, r.Header.Get("Stripe-Signature")); err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}
