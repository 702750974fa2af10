package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/services"
)

func TestPaymentIntentSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.InitiatePaymentCommand
	svc := &stubPaymentService{
		initiateFn: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentIntentHandle, error) {
			captured = cmd
			return services.PaymentIntentHandle{
				OrderID:          "ord_01",
				OrderNumber:      "FL-2026-000042",
				PaymentID:        "pay_01",
				Gateway:          "paystack",
				Reference:        "pay_01",
				AuthorizationURL: "https://checkout.paystack.com/abc",
				Amount:           money.MustParse("29.88"),
				Currency:         "NGN",
			}, nil
		},
	}

	handler := NewPaymentHandlers(svc)
	handler.Routes(router)

	payload := `{
		"gateway": "paystack",
		"currency": "NGN",
		"deliveryMethod": "standard",
		"customerEmail": "guest@example.com",
		"lines": [{"catalogItemId": "itm_jollof", "unitPrice": "12.50", "quantity": 2}],
		"breakdown": {"subtotal": "25.00", "deliveryFee": "3.00", "vat": "1.88", "total": "29.88"},
		"metadata": {"source": "web"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp intentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderNumber != "FL-2026-000042" || resp.AuthorizationURL == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Amount != "29.88" {
		t.Fatalf("expected amount 29.88, got %s", resp.Amount)
	}

	if captured.Declared == nil || captured.Declared.Total != money.MustParse("29.88") {
		t.Errorf("expected declared breakdown parsed, got %+v", captured.Declared)
	}
	if captured.Metadata["source"] != "web" {
		t.Errorf("expected metadata propagated, got %#v", captured.Metadata)
	}
	if captured.DeliveryMethod != domain.DeliveryStandard {
		t.Errorf("expected standard delivery, got %s", captured.DeliveryMethod)
	}
}

func TestPaymentIntentErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"amount too small", fmt.Errorf("%w: 100 < 5000", payments.ErrAmountTooSmall), http.StatusBadRequest, "amount_too_small"},
		{"totals mismatch", fmt.Errorf("%w: total", services.ErrTotalsMismatch), http.StatusBadRequest, "totals_mismatch"},
		{"gateway down", fmt.Errorf("%w: 502", services.ErrGatewayUnavailable), http.StatusBadGateway, "gateway_unavailable"},
		{"unknown gateway", fmt.Errorf("%w: flutterwave", payments.ErrUnsupportedProvider), http.StatusBadRequest, "invalid_request"},
		{"missing customer email", fmt.Errorf("%w: paystack requires a customer email", payments.ErrInvalidIntentInput), http.StatusBadRequest, "invalid_request"},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, "payment_error"},
	}

	payload := `{"gateway":"paystack","currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_1","unitPrice":"10.00","quantity":1}]}`
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := chi.NewRouter()
			svc := &stubPaymentService{
				initiateFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentIntentHandle, error) {
					return services.PaymentIntentHandle{}, tc.err
				},
			}
			handler := NewPaymentHandlers(svc)
			handler.Routes(router)

			req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewBufferString(payload))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestPaymentIntentRejectsMalformedBreakdown(t *testing.T) {
	router := chi.NewRouter()
	handler := NewPaymentHandlers(&stubPaymentService{
		initiateFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentIntentHandle, error) {
			t.Fatal("payment service must not be called for a malformed breakdown")
			return services.PaymentIntentHandle{}, nil
		},
	})
	handler.Routes(router)

	payload := `{"gateway":"paystack","currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_1","unitPrice":"10.00","quantity":1}],"breakdown":{"subtotal":"25.001","deliveryFee":"3.00","vat":"1.88","total":"29.88"}}`
	req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
