package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/platform/config"
	"github.com/feastline/api/internal/repositories"
	"github.com/feastline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing    services.PricingService
	Payments   services.PaymentService
	Settlement services.SettlementService
	Orders     services.OrderService
	System     services.SystemService
}

// Deps collects the external collaborators NewContainer wires into services.
type Deps struct {
	Registry repositories.Registry
	Gateways *payments.Manager
	Notifier services.Notifier
	Build    services.BuildInfo
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides a Postgres
// registry and real payment gateways, while tests can supply in-memory implementations.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payments manager is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	resolver, err := services.NewExtrasResolver(services.ExtrasResolverDeps{
		Extras: reg.Extras(),
		Logger: zapEventLogger(deps.Logger, "extras"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build extras resolver: %w", err)
	}

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Config:   reg.PricingConfig(),
		Resolver: resolver,
		Defaults: pricingDefaults(cfg.Pricing),
		CacheTTL: cfg.Pricing.CacheTTL,
		Clock:    deps.Clock,
		Logger:   zapEventLogger(deps.Logger, "pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Gateways:   deps.Gateways,
		Pricing:    pricingSvc,
		Clock:      deps.Clock,
		Logger:     zapEventLogger(deps.Logger, "payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	settlementSvc, err := services.NewSettlementService(services.SettlementServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Events:     reg.WebhookEvents(),
		UnitOfWork: reg,
		Notifier:   deps.Notifier,
		Clock:      deps.Clock,
		Logger:     zapEventLogger(deps.Logger, "settlement"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build settlement service: %w", err)
	}
	svc.Settlement = settlementSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		UnitOfWork: reg,
		Notifier:   deps.Notifier,
		Clock:      deps.Clock,
		Logger:     zapEventLogger(deps.Logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.Clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func pricingDefaults(cfg config.PricingConfig) domain.PricingConfig {
	return domain.PricingConfig{
		VATEnabled: cfg.VATEnabled,
		VATRateBps: cfg.VATRateBps,
		DeliveryFees: map[domain.DeliveryMethod]money.Amount{
			domain.DeliveryStandard: money.Amount(cfg.DeliveryFeeStandard),
			domain.DeliveryExpress:  money.Amount(cfg.DeliveryFeeExpress),
		},
	}
}

func zapEventLogger(logger *zap.Logger, name string) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		named.Debug("service log", zFields...)
	}
}
