package services

import (
	"context"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/payments"
)

// QuoteLine is one cart line submitted for pricing. VariantPrice, when set,
// replaces UnitPrice as the per-unit base amount.
type QuoteLine struct {
	CatalogItemID string
	Name          string
	UnitPrice     money.Amount
	VariantPrice  *money.Amount
	Quantity      int
	Extras        []domain.SelectedExtra
}

// QuoteCommand carries a cart to be priced authoritatively.
type QuoteCommand struct {
	Currency       string
	DeliveryMethod domain.DeliveryMethod
	Lines          []QuoteLine
}

// Quote pairs the authoritative breakdown with a temporary order reference.
type Quote struct {
	Reference string
	Breakdown domain.PriceBreakdown
}

// DeclaredBreakdown carries client-computed totals submitted for cross-validation.
type DeclaredBreakdown struct {
	Subtotal    money.Amount
	DeliveryFee money.Amount
	VAT         money.Amount
	Total       money.Amount
}

// PricingService prices carts against the live extras catalog and runtime
// pricing configuration, and exposes the operator configuration surface.
type PricingService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
	// Price resolves, prices, and cross-validates a cart. The declared
	// breakdown is rejected on any mismatch, never corrected.
	Price(ctx context.Context, cmd QuoteCommand, declared *DeclaredBreakdown) (domain.PriceBreakdown, []domain.CartLine, error)
	Config(ctx context.Context) (domain.PricingConfig, error)
	UpdateConfig(ctx context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error)
}

// InitiatePaymentCommand prepares an order and creates a gateway intent for it.
type InitiatePaymentCommand struct {
	Reference      string
	Gateway        string
	Currency       string
	DeliveryMethod domain.DeliveryMethod
	Lines          []QuoteLine
	Declared       *DeclaredBreakdown
	CustomerEmail  string
	CustomerPhone  string
	UserID         string
	Metadata       map[string]string
}

// PaymentIntentHandle is returned to the client to complete payment on the gateway.
type PaymentIntentHandle struct {
	OrderID          string
	OrderNumber      string
	PaymentID        string
	Gateway          string
	Reference        string
	ClientSecret     string
	AuthorizationURL string
	Amount           money.Amount
	Currency         string
}

// PaymentService orchestrates order creation and gateway intent creation.
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentIntentHandle, error)
}

// SettlementResult reports how a verified gateway event was applied.
type SettlementResult struct {
	Applied       bool
	Duplicate     bool
	Anomaly       bool
	UnknownRef    bool
	OrderID       string
	PaymentStatus domain.PaymentStatus
}

// SettlementService applies verified gateway events to payment and order state.
type SettlementService interface {
	Apply(ctx context.Context, event payments.Event) (SettlementResult, error)
}

// OrderDetails is the ops-facing read model: the order with its payments.
type OrderDetails struct {
	Order    domain.Order
	Payments []domain.Payment
}

// TransitionOrderCommand advances an order through the fulfillment state machine.
type TransitionOrderCommand struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	Reason       string
	ActorID      string
}

// OrderService owns fulfillment status writes and the ops read surface.
type OrderService interface {
	Get(ctx context.Context, orderID string) (OrderDetails, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error)
}

// SystemService surfaces dependency health for the readiness endpoint.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// Notification is published after settlement and fulfillment transitions.
type Notification struct {
	Type        string
	OrderID     string
	OrderNumber string
	Status      string
	Recipient   string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Notifier dispatches order notifications. Dispatch is best effort; callers
// log failures and never roll back state on them.
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
