package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/services"
)

func TestCheckoutQuoteSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.QuoteCommand
	pricing := &stubPricingService{
		quoteFn: func(_ context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			captured = cmd
			return services.Quote{
				Reference: "quo_01HZX",
				Breakdown: domain.PriceBreakdown{
					Currency:    "NGN",
					Subtotal:    money.MustParse("25.00"),
					VATRateBps:  750,
					VAT:         money.MustParse("1.88"),
					DeliveryFee: money.MustParse("3.00"),
					Total:       money.MustParse("29.88"),
				},
			}, nil
		},
	}

	handler := NewCheckoutHandlers(pricing)
	handler.Routes(router)

	payload := `{
		"currency": "NGN",
		"deliveryMethod": "standard",
		"lines": [
			{"catalogItemId": "itm_jollof", "unitPrice": "12.50", "quantity": 2,
			 "extras": [{"groupId": "grp_sides", "itemId": "ext_plantain"}]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp quoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Reference != "quo_01HZX" {
		t.Fatalf("expected quote reference, got %s", resp.Reference)
	}
	if resp.Breakdown.VAT != "1.88" || resp.Breakdown.Total != "29.88" {
		t.Fatalf("unexpected breakdown %+v", resp.Breakdown)
	}

	if captured.DeliveryMethod != domain.DeliveryStandard {
		t.Errorf("expected standard delivery, got %s", captured.DeliveryMethod)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].UnitPrice != money.MustParse("12.50") {
		t.Errorf("unexpected parsed lines %+v", captured.Lines)
	}
	if len(captured.Lines[0].Extras) != 1 || captured.Lines[0].Extras[0].ItemID != "ext_plantain" {
		t.Errorf("expected extras propagated, got %+v", captured.Lines[0].Extras)
	}
}

func TestCheckoutQuoteParsesVariantPrice(t *testing.T) {
	router := chi.NewRouter()
	var captured services.QuoteCommand
	pricing := &stubPricingService{
		quoteFn: func(_ context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			captured = cmd
			return services.Quote{Reference: "quo_01HZY"}, nil
		},
	}

	handler := NewCheckoutHandlers(pricing)
	handler.Routes(router)

	payload := `{"currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_jollof","unitPrice":"12.50","variantPrice":"15.00","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Lines) != 1 {
		t.Fatalf("expected one parsed line, got %+v", captured.Lines)
	}
	if captured.Lines[0].VariantPrice == nil || *captured.Lines[0].VariantPrice != money.MustParse("15.00") {
		t.Fatalf("expected variant price 15.00, got %+v", captured.Lines[0].VariantPrice)
	}
	if captured.Lines[0].UnitPrice != money.MustParse("12.50") {
		t.Errorf("expected unit price 12.50, got %d", captured.Lines[0].UnitPrice)
	}
}

func TestCheckoutQuoteRejectsSubCentPrice(t *testing.T) {
	router := chi.NewRouter()
	handler := NewCheckoutHandlers(&stubPricingService{})
	handler.Routes(router)

	payload := `{"currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_1","unitPrice":"12.505","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCheckoutQuoteSelectionViolation(t *testing.T) {
	router := chi.NewRouter()
	pricing := &stubPricingService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.Quote, error) {
			return services.Quote{}, &services.SelectionViolation{GroupID: "grp_sides", Reason: "requires at least 1 selection"}
		},
	}
	handler := NewCheckoutHandlers(pricing)
	handler.Routes(router)

	payload := `{"currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_1","unitPrice":"10.00","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if body["error"] != "invalid_extras_selection" {
		t.Fatalf("expected invalid_extras_selection code, got %v", body["error"])
	}
	if body["group_id"] != "grp_sides" {
		t.Fatalf("expected offending group in details, got %v", body)
	}
}

func TestCheckoutQuoteRateLimited(t *testing.T) {
	router := chi.NewRouter()
	pricing := &stubPricingService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.Quote, error) {
			return services.Quote{Reference: "quo_x"}, nil
		},
	}
	handler := NewCheckoutHandlers(pricing)
	handler.Routes(router)

	payload := `{"currency":"NGN","deliveryMethod":"standard","lines":[{"catalogItemId":"itm_1","unitPrice":"10.00","quantity":1}]}`
	var last int
	for i := 0; i < quoteRateLimit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(payload))
		req.RemoteAddr = "203.0.113.9:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after %d requests, got %d", quoteRateLimit+1, last)
	}
}

func TestCheckoutQuoteEmptyBody(t *testing.T) {
	router := chi.NewRouter()
	handler := NewCheckoutHandlers(&stubPricingService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.Quote, error) {
			t.Fatal("pricing service must not be called for an empty body")
			return services.Quote{}, nil
		},
	})
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString(""))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty body, got %d", rr.Code)
	}
}
