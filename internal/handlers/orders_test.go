package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/services"
)

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:             "ord_01",
		OrderNumber:    "FL-2026-000042",
		Status:         domain.OrderStatusConfirmed,
		PaymentStatus:  domain.PaymentStatusPaid,
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
		Breakdown: domain.PriceBreakdown{
			Currency: "NGN",
			Subtotal: money.MustParse("25.00"),
			VAT:      money.MustParse("1.88"),
			Total:    money.MustParse("29.88"),
		},
		Contact:   domain.OrderContact{Email: "guest@example.com"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestGetOrderIncludesPayments(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.OrderDetails, error) {
			if orderID != "ord_01" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return services.OrderDetails{
				Order: sampleOrder(),
				Payments: []domain.Payment{{
					ID:          "pay_01",
					Provider:    "paystack",
					ProviderRef: "pay_01",
					Status:      domain.PaymentStatusPaid,
					Amount:      money.MustParse("29.88"),
					Currency:    "NGN",
				}},
			}, nil
		},
	}
	NewOrderHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/ord_01", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderNumber != "FL-2026-000042" || resp.Breakdown.Total != "29.88" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Payments) != 1 || resp.Payments[0].Gateway != "paystack" {
		t.Fatalf("expected payment history, got %+v", resp.Payments)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.OrderDetails, error) {
			return services.OrderDetails{}, fmt.Errorf("%w: missing", services.ErrOrderNotFound)
		},
	}
	NewOrderHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/ord_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestUpdateStatusSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.TransitionOrderCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPreparing
			return order, nil
		},
	}
	NewOrderHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodPut, "/ord_01/status", bytes.NewBufferString(`{"status":"PREPARING"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_01" || captured.TargetStatus != domain.OrderStatusPreparing {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "preparing" {
		t.Fatalf("expected preparing status, got %s", resp.Status)
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.TransitionOrderCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: delivered -> pending", services.ErrOrderInvalidState)
		},
	}
	NewOrderHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodPut, "/ord_01/status", bytes.NewBufferString(`{"status":"pending"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %v", body)
	}
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.TransitionOrderCommand) (domain.Order, error) {
			t.Fatal("service must not be called without a status")
			return domain.Order{}, nil
		},
	}
	NewOrderHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodPut, "/ord_01/status", bytes.NewBufferString(`{"reason":"why not"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
