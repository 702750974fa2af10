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
	"github.com/feastline/api/internal/services"
)

func TestAdminGetPricingConfig(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubPricingService{
		configFn: func(context.Context) (domain.PricingConfig, error) {
			return domain.PricingConfig{
				VATEnabled: true,
				VATRateBps: 750,
				DeliveryFees: map[domain.DeliveryMethod]money.Amount{
					domain.DeliveryStandard: money.MustParse("3.00"),
					domain.DeliveryExpress:  money.MustParse("5.00"),
				},
			}, nil
		},
	}
	NewAdminPricingHandlers(svc).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/pricing-config", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp pricingConfigPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.VATEnabled || resp.VATRateBps != 750 {
		t.Fatalf("unexpected config %+v", resp)
	}
	if resp.DeliveryFeeStandard != "3.00" || resp.DeliveryFeeExpress != "5.00" {
		t.Fatalf("unexpected fees %+v", resp)
	}
}

func TestAdminUpdatePricingConfig(t *testing.T) {
	router := chi.NewRouter()
	var captured domain.PricingConfig
	svc := &stubPricingService{
		updateConfigFn: func(_ context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error) {
			captured = cfg
			return cfg, nil
		},
	}
	NewAdminPricingHandlers(svc).Routes(router)

	payload := `{"vatEnabled":true,"vatRateBps":500,"deliveryFeeStandard":"3.50","deliveryFeeExpress":"6.00"}`
	req := httptest.NewRequest(http.MethodPut, "/pricing-config", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.VATRateBps != 500 {
		t.Fatalf("expected vat rate forwarded, got %d", captured.VATRateBps)
	}
	if captured.DeliveryFees[domain.DeliveryExpress] != money.MustParse("6.00") {
		t.Fatalf("expected express fee parsed, got %+v", captured.DeliveryFees)
	}
}

func TestAdminUpdatePricingConfigValidation(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubPricingService{
		updateConfigFn: func(_ context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error) {
			return domain.PricingConfig{}, fmt.Errorf("%w: vat rate out of range", services.ErrPricingConfigInvalid)
		},
	}
	NewAdminPricingHandlers(svc).Routes(router)

	payload := `{"vatEnabled":true,"vatRateBps":10001,"deliveryFeeStandard":"3.50","deliveryFeeExpress":"6.00"}`
	req := httptest.NewRequest(http.MethodPut, "/pricing-config", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminUpdatePricingConfigRejectsMalformedFee(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubPricingService{
		updateConfigFn: func(context.Context, domain.PricingConfig) (domain.PricingConfig, error) {
			t.Fatal("service must not be called for malformed fees")
			return domain.PricingConfig{}, nil
		},
	}
	NewAdminPricingHandlers(svc).Routes(router)

	payload := `{"vatEnabled":true,"vatRateBps":750,"deliveryFeeStandard":"three","deliveryFeeExpress":"6.00"}`
	req := httptest.NewRequest(http.MethodPut, "/pricing-config", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
