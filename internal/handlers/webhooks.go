package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

// Gateways send payloads well under this; anything larger is not a webhook.
const maxWebhookBody = 1 << 20

// WebhookHandlers receives gateway webhooks, verifies their signatures through
// the provider adapters, and hands verified events to the settlement service.
type WebhookHandlers struct {
	gateways   *payments.Manager
	settlement services.SettlementService
	logger     func(event string, fields map[string]any)
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithWebhookLogger sets the structured log sink for settlement outcomes.
func WithWebhookLogger(logger func(event string, fields map[string]any)) WebhookOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs webhook handlers over the gateway manager.
func NewWebhookHandlers(gateways *payments.Manager, settlement services.SettlementService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		gateways:   gateways,
		settlement: settlement,
		logger:     func(string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers one endpoint per gateway under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.receive("stripe"))
	r.Post("/paystack", h.receive("paystack"))
}

// receive returns the handler for one gateway. A webhook answers 200 whenever
// the event was understood, including duplicates, ignored event types, and
// references we do not know; the gateway must not redeliver those. Only
// signature failures (400) and internal errors (500) are surfaced.
func (h *WebhookHandlers) receive(gateway string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.gateways == nil || h.settlement == nil {
			httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
			return
		}

		event, err := h.gateways.VerifyWebhook(ctx, gateway, payload, r.Header)
		if err != nil {
			switch {
			case errors.Is(err, payments.ErrIgnoredEvent):
				h.logger("webhook.ignored", map[string]any{"gateway": gateway})
				writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
			case errors.Is(err, payments.ErrInvalidSignature):
				httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			default:
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed webhook payload", http.StatusBadRequest))
			}
			return
		}

		result, err := h.settlement.Apply(ctx, event)
		if err != nil {
			if errors.Is(err, services.ErrSettlementInvalidEvent) {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
				return
			}
			h.logger("webhook.settlement_failed", map[string]any{
				"gateway":   gateway,
				"reference": event.Reference,
				"error":     err.Error(),
			})
			httpx.WriteError(ctx, w, httpx.NewError("settlement_error", "failed to apply webhook", http.StatusInternalServerError))
			return
		}

		status := "applied"
		switch {
		case result.Duplicate:
			status = "duplicate"
		case result.Anomaly:
			status = "anomaly"
		case result.UnknownRef:
			status = "unknown_reference"
		}
		h.logger("webhook.processed", map[string]any{
			"gateway":   gateway,
			"reference": event.Reference,
			"outcome":   string(event.Outcome),
			"status":    status,
		})
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": status})
	}
}
