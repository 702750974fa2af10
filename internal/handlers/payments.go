package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

const maxIntentRequestBody = 32 * 1024

// PaymentHandlers exposes the gateway intent endpoint.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers over the payment service.
func NewPaymentHandlers(paymentSvc services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: paymentSvc}
}

// Routes registers payment endpoints under the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/intent", h.createIntent)
}

type intentRequest struct {
	Gateway        string            `json:"gateway"`
	Currency       string            `json:"currency"`
	DeliveryMethod string            `json:"deliveryMethod"`
	Lines          []cartLineRequest `json:"lines"`
	Breakdown      *breakdownRequest `json:"breakdown"`
	CustomerEmail  string            `json:"customerEmail"`
	CustomerPhone  string            `json:"customerPhone"`
	Metadata       map[string]string `json:"metadata"`
}

type intentResponse struct {
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber"`
	Reference        string `json:"reference"`
	Gateway          string `json:"gateway"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxIntentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req intentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines, err := parseCartLines(req.Lines)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "line prices must be decimal amounts with at most two fractional digits", http.StatusBadRequest))
		return
	}
	declared, err := parseDeclaredBreakdown(req.Breakdown)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "breakdown amounts must be decimal amounts with at most two fractional digits", http.StatusBadRequest))
		return
	}

	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		metadata[key] = value
	}

	handle, err := h.payments.Initiate(ctx, services.InitiatePaymentCommand{
		Gateway:        strings.TrimSpace(req.Gateway),
		Currency:       req.Currency,
		DeliveryMethod: deliveryMethodFromString(req.DeliveryMethod),
		Lines:          lines,
		Declared:       declared,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Metadata:       metadata,
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, intentResponse{
		OrderID:          handle.OrderID,
		OrderNumber:      handle.OrderNumber,
		Reference:        handle.Reference,
		Gateway:          handle.Gateway,
		ClientSecret:     handle.ClientSecret,
		AuthorizationURL: handle.AuthorizationURL,
		Amount:           handle.Amount.String(),
		Currency:         handle.Currency,
	})
}

func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	var violation *services.SelectionViolation
	switch {
	case errors.Is(err, payments.ErrAmountTooSmall):
		httpx.WriteError(ctx, w, httpx.NewError("amount_too_small", "order total is below the gateway minimum charge", http.StatusBadRequest))
	case errors.Is(err, payments.ErrUnsupportedProvider):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported payment gateway", http.StatusBadRequest))
	case errors.Is(err, payments.ErrInvalidIntentInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTotalsMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("totals_mismatch", "declared totals do not match the server-computed breakdown", http.StatusBadRequest))
	case errors.As(err, &violation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_extras_selection", violation.Reason, http.StatusBadRequest).
			WithDetails(map[string]any{"group_id": violation.GroupID}))
	case errors.Is(err, services.ErrExtrasInvalidSelection),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrUnknownDeliveryMethod),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, money.ErrInvalidAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unavailable; retry shortly", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to initiate payment", http.StatusInternalServerError))
	}
}
