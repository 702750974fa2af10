package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

const (
	maxQuoteRequestBody = 32 * 1024

	quoteRateLimit  = 60
	quoteRateWindow = time.Minute
)

// CheckoutHandlers exposes the cart pricing endpoint.
type CheckoutHandlers struct {
	pricing services.PricingService
	limiter rateLimiter
}

// NewCheckoutHandlers constructs checkout handlers over the pricing service.
func NewCheckoutHandlers(pricing services.PricingService) *CheckoutHandlers {
	return &CheckoutHandlers{
		pricing: pricing,
		limiter: newSimpleRateLimiter(quoteRateLimit, quoteRateWindow, time.Now),
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quote", h.quote)
}

type quoteRequest struct {
	Currency       string            `json:"currency"`
	DeliveryMethod string            `json:"deliveryMethod"`
	Lines          []cartLineRequest `json:"lines"`
}

type quoteResponse struct {
	Reference string            `json:"reference"`
	Breakdown breakdownResponse `json:"breakdown"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKeyFromRequest(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxQuoteRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd, err := quoteCommandFromRequest(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	quote, err := h.pricing.Quote(ctx, cmd)
	if err != nil {
		h.writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, quoteResponse{
		Reference: quote.Reference,
		Breakdown: breakdownToResponse(quote.Breakdown),
	})
}

func quoteCommandFromRequest(req quoteRequest) (services.QuoteCommand, error) {
	lines, err := parseCartLines(req.Lines)
	if err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			return services.QuoteCommand{}, errors.New("line prices must be decimal amounts with at most two fractional digits")
		}
		return services.QuoteCommand{}, err
	}
	return services.QuoteCommand{
		Currency:       strings.TrimSpace(req.Currency),
		DeliveryMethod: deliveryMethodFromString(req.DeliveryMethod),
		Lines:          lines,
	}, nil
}

func (h *CheckoutHandlers) writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	var violation *services.SelectionViolation
	switch {
	case errors.As(err, &violation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_extras_selection", violation.Reason, http.StatusBadRequest).
			WithDetails(map[string]any{"group_id": violation.GroupID}))
	case errors.Is(err, services.ErrExtrasInvalidSelection):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_extras_selection", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnknownDeliveryMethod):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "deliveryMethod must be standard or express", http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTotalsMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("totals_mismatch", "declared totals do not match the server-computed breakdown", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to price cart", http.StatusInternalServerError))
	}
}
