package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

const maxOrderStatusBody = 4 * 1024

// OrderHandlers exposes the ops-facing order read and transition endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers over the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/status", h.updateStatus)
}

type orderResponse struct {
	ID             string             `json:"id"`
	OrderNumber    string             `json:"orderNumber"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"paymentStatus"`
	Currency       string             `json:"currency"`
	DeliveryMethod string             `json:"deliveryMethod"`
	Breakdown      breakdownResponse  `json:"breakdown"`
	CustomerEmail  string             `json:"customerEmail,omitempty"`
	CancelReason   string             `json:"cancelReason,omitempty"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
	PaidAt         string             `json:"paidAt,omitempty"`
	DeliveredAt    string             `json:"deliveredAt,omitempty"`
	CancelledAt    string             `json:"cancelledAt,omitempty"`
	Payments       []paymentSummary   `json:"payments,omitempty"`
	Lines          []orderLinePayload `json:"lines,omitempty"`
}

type orderLinePayload struct {
	CatalogItemID string `json:"catalogItemId"`
	Name          string `json:"name,omitempty"`
	UnitPrice     string `json:"unitPrice"`
	Quantity      int    `json:"quantity"`
}

type paymentSummary struct {
	ID          string `json:"id"`
	Gateway     string `json:"gateway"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	FailureCode string `json:"failureCode,omitempty"`
	CreatedAt   string `json:"createdAt"`
	SettledAt   string `json:"settledAt,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	details, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderToResponse(details.Order, details.Payments))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderStatusBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req orderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	target := strings.ToLower(strings.TrimSpace(req.Status))
	if target == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(target),
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderToResponse(order, nil))
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func orderToResponse(order domain.Order, orderPayments []domain.Payment) orderResponse {
	resp := orderResponse{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Currency:       order.Currency,
		DeliveryMethod: string(order.DeliveryMethod),
		Breakdown:      breakdownToResponse(order.Breakdown),
		CustomerEmail:  order.Contact.Email,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		PaidAt:         formatTimePtr(order.PaidAt),
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
		CancelledAt:    formatTimePtr(order.CancelledAt),
	}
	if order.CancelReason != nil {
		resp.CancelReason = *order.CancelReason
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLinePayload{
			CatalogItemID: line.CatalogItemID,
			Name:          line.Name,
			UnitPrice:     line.UnitPrice.String(),
			Quantity:      line.Quantity,
		})
	}
	for _, payment := range orderPayments {
		summary := paymentSummary{
			ID:        payment.ID,
			Gateway:   payment.Provider,
			Reference: payment.ProviderRef,
			Status:    string(payment.Status),
			Amount:    payment.Amount.String(),
			Currency:  payment.Currency,
			CreatedAt: formatTime(payment.CreatedAt),
			SettledAt: formatTimePtr(payment.SettledAt),
		}
		if payment.FailureCode != nil {
			summary.FailureCode = *payment.FailureCode
		}
		resp.Payments = append(resp.Payments, summary)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
