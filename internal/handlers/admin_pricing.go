package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

const maxPricingConfigBody = 8 * 1024

// AdminPricingHandlers exposes the operator pricing configuration endpoints.
// The HMAC middleware guarding these routes is applied by the router group.
type AdminPricingHandlers struct {
	pricing services.PricingService
}

// NewAdminPricingHandlers constructs the admin pricing handlers.
func NewAdminPricingHandlers(pricing services.PricingService) *AdminPricingHandlers {
	return &AdminPricingHandlers{pricing: pricing}
}

// Routes registers admin pricing endpoints under the provided router.
func (h *AdminPricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricing-config", h.getConfig)
	r.Put("/pricing-config", h.updateConfig)
}

type pricingConfigPayload struct {
	VATEnabled          bool   `json:"vatEnabled"`
	VATRateBps          int64  `json:"vatRateBps"`
	DeliveryFeeStandard string `json:"deliveryFeeStandard"`
	DeliveryFeeExpress  string `json:"deliveryFeeExpress"`
}

func (h *AdminPricingHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	cfg, err := h.pricing.Config(ctx)
	if err != nil {
		h.writeConfigError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, configToPayload(cfg))
}

func (h *AdminPricingHandlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPricingConfigBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req pricingConfigPayload
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	standard, err := money.Parse(strings.TrimSpace(req.DeliveryFeeStandard))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "deliveryFeeStandard must be a decimal amount", http.StatusBadRequest))
		return
	}
	express, err := money.Parse(strings.TrimSpace(req.DeliveryFeeExpress))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "deliveryFeeExpress must be a decimal amount", http.StatusBadRequest))
		return
	}

	updated, err := h.pricing.UpdateConfig(ctx, domain.PricingConfig{
		VATEnabled: req.VATEnabled,
		VATRateBps: req.VATRateBps,
		DeliveryFees: map[domain.DeliveryMethod]money.Amount{
			domain.DeliveryStandard: standard,
			domain.DeliveryExpress:  express,
		},
	})
	if err != nil {
		h.writeConfigError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, configToPayload(updated))
}

func (h *AdminPricingHandlers) writeConfigError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingConfigInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_config_error", "failed to process pricing configuration", http.StatusInternalServerError))
	}
}

func configToPayload(cfg domain.PricingConfig) pricingConfigPayload {
	return pricingConfigPayload{
		VATEnabled:          cfg.VATEnabled,
		VATRateBps:          cfg.VATRateBps,
		DeliveryFeeStandard: cfg.DeliveryFee(domain.DeliveryStandard).String(),
		DeliveryFeeExpress:  cfg.DeliveryFee(domain.DeliveryExpress).String(),
	}
}
