package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/repositories"
)

const quoteIDPrefix = "quo_"

var (
	// ErrPricingInvalidInput signals bad cart data such as empty lines or non-positive quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrUnknownDeliveryMethod is returned for delivery methods outside the supported set.
	ErrUnknownDeliveryMethod = errors.New("pricing: unknown delivery method")
	// ErrTotalsMismatch indicates a client-declared breakdown disagrees with the recomputed one.
	ErrTotalsMismatch = errors.New("pricing: totals mismatch")
	// ErrPricingConfigInvalid signals operator-submitted configuration outside allowed bounds.
	ErrPricingConfigInvalid = errors.New("pricing: invalid configuration")
)

// PricingServiceDeps bundles collaborators required to construct the pricing service.
type PricingServiceDeps struct {
	Config   repositories.PricingConfigRepository
	Resolver *ExtrasResolver
	// Defaults are applied when no stored configuration exists yet.
	Defaults domain.PricingConfig
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	config   repositories.PricingConfigRepository
	resolver *ExtrasResolver
	defaults domain.PricingConfig
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)

	cacheTTL time.Duration
	mu       sync.RWMutex
	cached   *domain.PricingConfig
	cachedAt time.Time
}

var _ PricingService = (*pricingService)(nil)

// NewPricingService wires dependencies into a concrete PricingService implementation.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Config == nil {
		return nil, errors.New("pricing service: config repository is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("pricing service: extras resolver is required")
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingService{
		config:   deps.Config,
		resolver: deps.Resolver,
		defaults: deps.Defaults,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		cacheTTL: ttl,
	}, nil
}

func (s *pricingService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	breakdown, _, err := s.Price(ctx, cmd, nil)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Reference: quoteIDPrefix + ulid.Make().String(),
		Breakdown: breakdown,
	}, nil
}

func (s *pricingService) Price(ctx context.Context, cmd QuoteCommand, declared *DeclaredBreakdown) (domain.PriceBreakdown, []domain.CartLine, error) {
	if len(cmd.Lines) == 0 {
		return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: cart must contain at least one line", ErrPricingInvalidInput)
	}
	if !cmd.DeliveryMethod.Valid() {
		return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: %q", ErrUnknownDeliveryMethod, cmd.DeliveryMethod)
	}
	for i, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: line %d quantity must be positive", ErrPricingInvalidInput, i)
		}
		if strings.TrimSpace(line.CatalogItemID) == "" {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: line %d catalog item id is required", ErrPricingInvalidInput, i)
		}
		if line.UnitPrice < 0 {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: line %d unit price must not be negative", ErrPricingInvalidInput, i)
		}
		if line.VariantPrice != nil && *line.VariantPrice < 0 {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("%w: line %d variant price must not be negative", ErrPricingInvalidInput, i)
		}
	}

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return domain.PriceBreakdown{}, nil, err
	}

	itemIDs := make([]string, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		itemIDs = append(itemIDs, line.CatalogItemID)
	}
	groupsByItem, err := s.resolver.ResolveForItems(ctx, itemIDs)
	if err != nil {
		return domain.PriceBreakdown{}, nil, err
	}

	breakdown := domain.PriceBreakdown{Currency: strings.ToUpper(strings.TrimSpace(cmd.Currency))}
	cartLines := make([]domain.CartLine, 0, len(cmd.Lines))

	var subtotal money.Amount
	for _, line := range cmd.Lines {
		priced, extrasTotal, err := ValidateSelections(groupsByItem[line.CatalogItemID], line.Extras)
		if err != nil {
			return domain.PriceBreakdown{}, nil, err
		}

		basePrice := line.UnitPrice
		if line.VariantPrice != nil {
			basePrice = *line.VariantPrice
		}
		perUnit, err := basePrice.Add(extrasTotal)
		if err != nil {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
		}
		lineTotal, err := perUnit.MulQuantity(int64(line.Quantity))
		if err != nil {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
		}
		if subtotal, err = subtotal.Add(lineTotal); err != nil {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
		}

		breakdown.Lines = append(breakdown.Lines, domain.LinePricing{
			CatalogItemID: line.CatalogItemID,
			UnitPrice:     basePrice,
			ExtrasPrice:   extrasTotal,
			Quantity:      line.Quantity,
			LineTotal:     lineTotal,
			Extras:        priced,
		})
		cartLines = append(cartLines, domain.CartLine{
			CatalogItemID: line.CatalogItemID,
			Name:          line.Name,
			UnitPrice:     line.UnitPrice,
			VariantPrice:  line.VariantPrice,
			Quantity:      line.Quantity,
			Extras:        line.Extras,
		})
	}

	breakdown.Subtotal = subtotal
	breakdown.DeliveryFee = cfg.DeliveryFee(cmd.DeliveryMethod)
	if cfg.VATEnabled {
		breakdown.VATRateBps = cfg.VATRateBps
		vat, err := money.ApplyBasisPoints(subtotal, cfg.VATRateBps)
		if err != nil {
			return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
		}
		breakdown.VAT = vat
	}

	total, err := breakdown.Subtotal.Add(breakdown.DeliveryFee)
	if err != nil {
		return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
	}
	if total, err = total.Add(breakdown.VAT); err != nil {
		return domain.PriceBreakdown{}, nil, fmt.Errorf("pricing: %w", err)
	}
	breakdown.Total = total

	if declared != nil {
		if err := crossValidate(breakdown, *declared); err != nil {
			s.logger(ctx, "pricing.totals.mismatch", map[string]any{
				"declared_total": declared.Total.String(),
				"computed_total": breakdown.Total.String(),
			})
			return domain.PriceBreakdown{}, nil, err
		}
	}

	return breakdown, cartLines, nil
}

// crossValidate rejects any client-declared breakdown that disagrees with the
// recomputed one by even one minor unit. Values are never clamped or corrected.
func crossValidate(computed domain.PriceBreakdown, declared DeclaredBreakdown) error {
	switch {
	case declared.Total != computed.Total:
		return fmt.Errorf("%w: declared total %s, computed %s", ErrTotalsMismatch, declared.Total, computed.Total)
	case declared.Subtotal != computed.Subtotal:
		return fmt.Errorf("%w: declared subtotal %s, computed %s", ErrTotalsMismatch, declared.Subtotal, computed.Subtotal)
	case declared.DeliveryFee != computed.DeliveryFee:
		return fmt.Errorf("%w: declared delivery fee %s, computed %s", ErrTotalsMismatch, declared.DeliveryFee, computed.DeliveryFee)
	case declared.VAT != computed.VAT:
		return fmt.Errorf("%w: declared vat %s, computed %s", ErrTotalsMismatch, declared.VAT, computed.VAT)
	}
	return nil
}

func (s *pricingService) Config(ctx context.Context) (domain.PricingConfig, error) {
	return s.loadConfig(ctx)
}

func (s *pricingService) UpdateConfig(ctx context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error) {
	if cfg.VATRateBps < 0 || cfg.VATRateBps > 10000 {
		return domain.PricingConfig{}, fmt.Errorf("%w: vat rate must be between 0 and 10000 basis points", ErrPricingConfigInvalid)
	}
	for _, method := range []domain.DeliveryMethod{domain.DeliveryStandard, domain.DeliveryExpress} {
		fee, ok := cfg.DeliveryFees[method]
		if !ok {
			return domain.PricingConfig{}, fmt.Errorf("%w: delivery fee for %s is required", ErrPricingConfigInvalid, method)
		}
		if fee < 0 {
			return domain.PricingConfig{}, fmt.Errorf("%w: delivery fee for %s must not be negative", ErrPricingConfigInvalid, method)
		}
	}

	if err := s.config.Save(ctx, cfg, s.clock()); err != nil {
		return domain.PricingConfig{}, fmt.Errorf("pricing: save config: %w", err)
	}

	s.mu.Lock()
	s.cached = &cfg
	s.cachedAt = s.clock()
	s.mu.Unlock()

	return cfg, nil
}

// loadConfig serves the TTL cache, falling back to configured defaults when no
// stored configuration exists so checkout never fails on missing config rows.
func (s *pricingService) loadConfig(ctx context.Context) (domain.PricingConfig, error) {
	now := s.clock()

	s.mu.RLock()
	if s.cached != nil && now.Sub(s.cachedAt) < s.cacheTTL {
		cfg := *s.cached
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	cfg, err := s.config.Get(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return s.defaults, nil
		}
		s.logger(ctx, "pricing.config.load.failed", map[string]any{"error": err.Error()})
		return domain.PricingConfig{}, fmt.Errorf("pricing: load config: %w", err)
	}

	s.mu.Lock()
	s.cached = &cfg
	s.cachedAt = now
	s.mu.Unlock()

	return cfg, nil
}
