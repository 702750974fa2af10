package repositories

import (
	"context"
	"time"

	domain "github.com/feastline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Extras() ExtrasRepository
	PricingConfig() PricingConfigRepository
	WebhookEvents() WebhookEventRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their line snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDForUpdate locks the order row for the duration of the enclosing transaction.
	FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	UpdateFulfillment(ctx context.Context, order domain.Order) error
	UpdatePaymentState(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt *time.Time, updatedAt time.Time) error
}

// PaymentRepository persists payment attempts and their settlement state.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	// FindByProviderRefForUpdate locks the payment row for the duration of the enclosing transaction.
	FindByProviderRefForUpdate(ctx context.Context, provider, reference string) (domain.Payment, error)
	// UpdateStatus writes settlement state together with the raw gateway payload kept for audit.
	UpdateStatus(ctx context.Context, paymentID string, status domain.PaymentStatus, failureCode *string, gatewayResponse []byte, settledAt *time.Time, updatedAt time.Time) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// ExtrasRepository reads the extras catalog used to resolve cart selections.
// Implementations return only active groups and items.
type ExtrasRepository interface {
	// ListGlobalGroups returns every active globally-scoped group with its items.
	ListGlobalGroups(ctx context.Context) ([]domain.ExtraGroup, error)
	// GetGroups returns the groups (with items) for the requested ids, keyed by group id.
	GetGroups(ctx context.Context, groupIDs []string) (map[string]domain.ExtraGroup, error)
	// ListLinksForItems returns catalog item to extras group attachments keyed by catalog item id.
	ListLinksForItems(ctx context.Context, catalogItemIDs []string) (map[string][]domain.CatalogExtraLink, error)
}

// PricingConfigRepository persists tenant pricing knobs.
type PricingConfigRepository interface {
	Get(ctx context.Context) (domain.PricingConfig, error)
	Save(ctx context.Context, cfg domain.PricingConfig, updatedAt time.Time) error
}

// WebhookEventRepository records processed gateway events for at-most-once side effects.
type WebhookEventRepository interface {
	// InsertIfAbsent stores the event and reports whether it was newly recorded.
	InsertIfAbsent(ctx context.Context, event domain.WebhookEvent) (bool, error)
}

// CounterRepository issues monotonically increasing sequence values for human-facing order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository aggregates dependency probes for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
