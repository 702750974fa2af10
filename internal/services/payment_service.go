package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"

	defaultGatewayAttempts = 3
	defaultRetryBackoff    = 200 * time.Millisecond
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrGatewayUnavailable indicates the gateway kept failing with retryable errors; safe to resubmit.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Counters   repositories.CounterRepository
	UnitOfWork repositories.UnitOfWork
	Gateways   *payments.Manager
	Pricing    PricingService
	// MaxAttempts bounds gateway calls for retryable failures. Defaults to 3.
	MaxAttempts  int
	RetryBackoff time.Duration
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders       repositories.OrderRepository
	payments     repositories.PaymentRepository
	counters     repositories.CounterRepository
	unitOfWork   repositories.UnitOfWork
	gateways     *payments.Manager
	pricing      PricingService
	maxAttempts  int
	retryBackoff time.Duration
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("payment service: counter repository is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("payment service: pricing service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultGatewayAttempts
	}
	backoff := deps.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:       deps.Orders,
		payments:     deps.Payments,
		counters:     deps.Counters,
		unitOfWork:   unit,
		gateways:     deps.Gateways,
		pricing:      deps.Pricing,
		maxAttempts:  attempts,
		retryBackoff: backoff,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentIntentHandle, error) {
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		return PaymentIntentHandle{}, fmt.Errorf("%w: currency is required", ErrPaymentInvalidInput)
	}

	breakdown, lines, err := s.pricing.Price(ctx, QuoteCommand{
		Currency:       currency,
		DeliveryMethod: cmd.DeliveryMethod,
		Lines:          cmd.Lines,
	}, cmd.Declared)
	if err != nil {
		return PaymentIntentHandle{}, err
	}
	if breakdown.Total <= 0 {
		return PaymentIntentHandle{}, fmt.Errorf("%w: order total must be positive", ErrPaymentInvalidInput)
	}

	now := s.clock()
	order := domain.Order{
		ID:             orderIDPrefix + s.newID(),
		UserID:         strings.TrimSpace(cmd.UserID),
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		Currency:       currency,
		DeliveryMethod: cmd.DeliveryMethod,
		Lines:          lines,
		Breakdown:      breakdown,
		Contact: domain.OrderContact{
			Email: strings.TrimSpace(cmd.CustomerEmail),
			Phone: strings.TrimSpace(cmd.CustomerPhone),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return PaymentIntentHandle{}, err
	}
	order.OrderNumber = number

	paymentID := paymentIDPrefix + s.newID()
	metadata := map[string]string{}
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}
	metadata["order_number"] = order.OrderNumber

	// The gateway call runs before any rows are written so a rejected intent,
	// whether a charge-floor breach or bad caller input, leaves no pending
	// order behind.
	intent, err := s.createIntentWithRetry(ctx, cmd.Gateway, payments.IntentRequest{
		OrderID:        order.ID,
		Reference:      paymentID,
		Amount:         breakdown.Total.MinorUnits(),
		Currency:       currency,
		CustomerEmail:  order.Contact.Email,
		Metadata:       metadata,
		IdempotencyKey: paymentID,
	})
	if err != nil {
		return PaymentIntentHandle{}, err
	}

	// Both rows must exist before the handle is returned so a webhook racing
	// the HTTP response still finds a payment to update.
	payment := domain.Payment{
		ID:          paymentID,
		OrderID:     order.ID,
		Provider:    intent.Provider,
		ProviderRef: intent.Reference,
		Status:      domain.PaymentStatusPending,
		Amount:      breakdown.Total,
		Currency:    currency,
		HandoffURL:  intent.RedirectURL,
		CreatedAt:   s.clock(),
		UpdatedAt:   s.clock(),
	}
	if err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.payments.Insert(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	}); err != nil {
		return PaymentIntentHandle{}, err
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"order":     order.ID,
		"payment":   payment.ID,
		"gateway":   intent.Provider,
		"reference": intent.Reference,
		"amount":    breakdown.Total.MinorUnits(),
	})

	return PaymentIntentHandle{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		PaymentID:        payment.ID,
		Gateway:          intent.Provider,
		Reference:        intent.Reference,
		ClientSecret:     intent.ClientSecret,
		AuthorizationURL: intent.RedirectURL,
		Amount:           breakdown.Total,
		Currency:         currency,
	}, nil
}

// createIntentWithRetry retries retryable gateway failures a bounded number of
// times with a fixed backoff; terminal failures surface immediately.
func (s *paymentService) createIntentWithRetry(ctx context.Context, gateway string, req payments.IntentRequest) (payments.Intent, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		intent, err := s.gateways.CreateIntent(ctx, gateway, req)
		if err == nil {
			return intent, nil
		}
		if !payments.IsRetryable(err) {
			return payments.Intent{}, err
		}
		lastErr = err
		s.logger(ctx, "payment.intent.retry", map[string]any{
			"order":   req.OrderID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return payments.Intent{}, ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt)):
		}
	}
	return payments.Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (s *paymentService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("FL-%04d-%06d", now.Year(), seq), nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("payment: repository unavailable: %w", err)
	}
	return err
}
