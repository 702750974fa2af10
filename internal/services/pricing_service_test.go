package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/repositories"
)

func testPricingConfig() domain.PricingConfig {
	return domain.PricingConfig{
		VATEnabled: true,
		VATRateBps: 750,
		DeliveryFees: map[domain.DeliveryMethod]money.Amount{
			domain.DeliveryStandard: money.FromMinorUnits(300),
			domain.DeliveryExpress:  money.FromMinorUnits(500),
		},
	}
}

func newTestPricingService(t *testing.T, cfgRepo *stubPricingConfigRepo, extras *stubExtrasRepo, opts ...func(*PricingServiceDeps)) PricingService {
	t.Helper()

	if extras == nil {
		extras = &stubExtrasRepo{}
	}
	resolver, err := NewExtrasResolver(ExtrasResolverDeps{Extras: extras})
	if err != nil {
		t.Fatalf("NewExtrasResolver: %v", err)
	}

	deps := PricingServiceDeps{
		Config:   cfgRepo,
		Resolver: resolver,
		Defaults: testPricingConfig(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewPricingService(deps)
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	return svc
}

func notFoundConfigRepo() *stubPricingConfigRepo {
	return &stubPricingConfigRepo{
		getFn: func(context.Context) (domain.PricingConfig, error) {
			return domain.PricingConfig{}, repositories.NewError("pricingConfig.Get", repositories.ErrorKindNotFound, "no rows", nil)
		},
	}
}

func extrasCatalogWithSide() *stubExtrasRepo {
	return &stubExtrasRepo{
		listGlobalGroupsFn: func(context.Context) ([]domain.ExtraGroup, error) {
			return []domain.ExtraGroup{{
				ID:     "grp_sides",
				Name:   "Sides",
				Scope:  domain.ScopeGlobal,
				Active: true,
				Items: []domain.ExtraItem{{
					ID:      "ext_plantain",
					GroupID: "grp_sides",
					Name:    "Plantain",
					Price:   money.FromMinorUnits(250),
					Active:  true,
				}},
			}}, nil
		},
	}
}

func TestPriceComputesVATAndTotal(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), extrasCatalogWithSide())

	breakdown, lines, err := svc.Price(context.Background(), QuoteCommand{
		Currency:       "ngn",
		DeliveryMethod: domain.DeliveryStandard,
		Lines: []QuoteLine{{
			CatalogItemID: "itm_jollof",
			Name:          "Jollof Rice",
			UnitPrice:     money.FromMinorUnits(1000),
			Quantity:      2,
			Extras:        []domain.SelectedExtra{{GroupID: "grp_sides", ItemID: "ext_plantain"}},
		}},
	}, nil)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if breakdown.Currency != "NGN" {
		t.Errorf("expected currency NGN, got %s", breakdown.Currency)
	}
	if breakdown.Subtotal != money.FromMinorUnits(2500) {
		t.Errorf("expected subtotal 2500, got %d", breakdown.Subtotal)
	}
	if breakdown.VAT != money.FromMinorUnits(188) {
		t.Errorf("expected VAT 188 (half-up from 187.5), got %d", breakdown.VAT)
	}
	if breakdown.DeliveryFee != money.FromMinorUnits(300) {
		t.Errorf("expected delivery fee 300, got %d", breakdown.DeliveryFee)
	}
	if breakdown.Total != money.FromMinorUnits(2988) {
		t.Errorf("expected total 2988, got %d", breakdown.Total)
	}
	if breakdown.VATRateBps != 750 {
		t.Errorf("expected pinned vat rate 750, got %d", breakdown.VATRateBps)
	}
	if len(lines) != 1 || lines[0].CatalogItemID != "itm_jollof" {
		t.Fatalf("unexpected cart snapshot: %+v", lines)
	}
	if len(breakdown.Lines) != 1 || breakdown.Lines[0].LineTotal != money.FromMinorUnits(2500) {
		t.Fatalf("unexpected line pricing: %+v", breakdown.Lines)
	}
}

func TestPriceUsesVariantPriceOverUnitPrice(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), extrasCatalogWithSide())

	variant := money.FromMinorUnits(1200)
	breakdown, lines, err := svc.Price(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
		Lines: []QuoteLine{{
			CatalogItemID: "itm_jollof",
			Name:          "Jollof Rice",
			UnitPrice:     money.FromMinorUnits(1000),
			VariantPrice:  &variant,
			Quantity:      2,
			Extras:        []domain.SelectedExtra{{GroupID: "grp_sides", ItemID: "ext_plantain"}},
		}},
	}, nil)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	// (1200 + 250) * 2 = 2900; VAT 7.5% half-up = 218; standard delivery 300.
	if breakdown.Subtotal != money.FromMinorUnits(2900) {
		t.Errorf("expected subtotal 2900, got %d", breakdown.Subtotal)
	}
	if breakdown.Total != money.FromMinorUnits(3418) {
		t.Errorf("expected total 3418, got %d", breakdown.Total)
	}
	if len(breakdown.Lines) != 1 || breakdown.Lines[0].UnitPrice != variant {
		t.Fatalf("expected line priced at the variant amount, got %+v", breakdown.Lines)
	}
	if len(lines) != 1 || lines[0].VariantPrice == nil || *lines[0].VariantPrice != variant {
		t.Fatalf("expected cart snapshot to keep the variant price, got %+v", lines)
	}
	if lines[0].UnitPrice != money.FromMinorUnits(1000) {
		t.Errorf("expected snapshot to retain catalog unit price, got %d", lines[0].UnitPrice)
	}

	negative := money.Amount(-100)
	_, _, err = svc.Price(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
		Lines: []QuoteLine{{
			CatalogItemID: "itm_jollof",
			UnitPrice:     money.FromMinorUnits(1000),
			VariantPrice:  &negative,
			Quantity:      1,
		}},
	}, nil)
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for negative variant price, got %v", err)
	}
}

func TestPriceRejectsDeclaredMismatch(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), extrasCatalogWithSide())

	cmd := QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
		Lines: []QuoteLine{{
			CatalogItemID: "itm_jollof",
			UnitPrice:     money.FromMinorUnits(1000),
			Quantity:      2,
			Extras:        []domain.SelectedExtra{{GroupID: "grp_sides", ItemID: "ext_plantain"}},
		}},
	}

	declared := &DeclaredBreakdown{
		Subtotal:    money.FromMinorUnits(2500),
		DeliveryFee: money.FromMinorUnits(300),
		VAT:         money.FromMinorUnits(188),
		Total:       money.FromMinorUnits(2987),
	}
	if _, _, err := svc.Price(context.Background(), cmd, declared); !errors.Is(err, ErrTotalsMismatch) {
		t.Fatalf("expected ErrTotalsMismatch for off-by-one total, got %v", err)
	}

	declared.Total = money.FromMinorUnits(2988)
	if _, _, err := svc.Price(context.Background(), cmd, declared); err != nil {
		t.Fatalf("expected matching declaration accepted, got %v", err)
	}
}

func TestPriceInputValidation(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), nil)

	_, _, err := svc.Price(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: "drone",
		Lines:          []QuoteLine{{CatalogItemID: "itm_a", UnitPrice: 100, Quantity: 1}},
	}, nil)
	if !errors.Is(err, ErrUnknownDeliveryMethod) {
		t.Fatalf("expected ErrUnknownDeliveryMethod, got %v", err)
	}

	_, _, err = svc.Price(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
		Lines:          []QuoteLine{{CatalogItemID: "itm_a", UnitPrice: 100, Quantity: 0}},
	}, nil)
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for zero quantity, got %v", err)
	}

	_, _, err = svc.Price(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryStandard,
	}, nil)
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for empty cart, got %v", err)
	}
}

func TestQuoteIssuesReference(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), nil)

	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Currency:       "NGN",
		DeliveryMethod: domain.DeliveryExpress,
		Lines:          []QuoteLine{{CatalogItemID: "itm_a", UnitPrice: money.FromMinorUnits(1000), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !strings.HasPrefix(quote.Reference, "quo_") {
		t.Errorf("expected quo_ reference prefix, got %s", quote.Reference)
	}
	// 1000 + express 500 + 7.5% VAT of 1000.
	if quote.Breakdown.Total != money.FromMinorUnits(1575) {
		t.Errorf("expected total 1575, got %d", quote.Breakdown.Total)
	}
}

func TestConfigCacheHonorsTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	calls := 0
	repo := &stubPricingConfigRepo{
		getFn: func(context.Context) (domain.PricingConfig, error) {
			calls++
			return testPricingConfig(), nil
		},
	}

	svc := newTestPricingService(t, repo, nil, func(deps *PricingServiceDeps) {
		deps.CacheTTL = time.Minute
		deps.Clock = func() time.Time { return now }
	})

	for i := 0; i < 3; i++ {
		if _, err := svc.Config(context.Background()); err != nil {
			t.Fatalf("Config: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single repository read within TTL, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Config(context.Background()); err != nil {
		t.Fatalf("Config after TTL: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refresh after TTL expiry, got %d reads", calls)
	}
}

func TestConfigFallsBackToDefaults(t *testing.T) {
	svc := newTestPricingService(t, notFoundConfigRepo(), nil)

	cfg, err := svc.Config(context.Background())
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.DeliveryFee(domain.DeliveryStandard) != money.FromMinorUnits(300) {
		t.Errorf("expected default standard fee, got %d", cfg.DeliveryFee(domain.DeliveryStandard))
	}
}

func TestUpdateConfigValidatesAndInvalidatesCache(t *testing.T) {
	saved := 0
	repo := &stubPricingConfigRepo{
		getFn: func(context.Context) (domain.PricingConfig, error) {
			return testPricingConfig(), nil
		},
		saveFn: func(_ context.Context, cfg domain.PricingConfig, _ time.Time) error {
			saved++
			return nil
		},
	}
	svc := newTestPricingService(t, repo, nil)

	bad := testPricingConfig()
	bad.VATRateBps = 10001
	if _, err := svc.UpdateConfig(context.Background(), bad); !errors.Is(err, ErrPricingConfigInvalid) {
		t.Fatalf("expected ErrPricingConfigInvalid, got %v", err)
	}

	missingFee := testPricingConfig()
	delete(missingFee.DeliveryFees, domain.DeliveryExpress)
	if _, err := svc.UpdateConfig(context.Background(), missingFee); !errors.Is(err, ErrPricingConfigInvalid) {
		t.Fatalf("expected ErrPricingConfigInvalid for missing fee, got %v", err)
	}

	updated := testPricingConfig()
	updated.DeliveryFees[domain.DeliveryStandard] = money.FromMinorUnits(450)
	result, err := svc.UpdateConfig(context.Background(), updated)
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if saved != 1 {
		t.Fatalf("expected one save, got %d", saved)
	}
	if result.DeliveryFee(domain.DeliveryStandard) != money.FromMinorUnits(450) {
		t.Errorf("expected updated fee returned, got %d", result.DeliveryFee(domain.DeliveryStandard))
	}

	// The cache now serves the updated value without a repository read.
	cfg, err := svc.Config(context.Background())
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.DeliveryFee(domain.DeliveryStandard) != money.FromMinorUnits(450) {
		t.Errorf("expected cached updated fee, got %d", cfg.DeliveryFee(domain.DeliveryStandard))
	}
}
