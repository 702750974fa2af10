package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Intents       stripePaymentIntentAPI
}

// StripeProvider implements the Provider interface using Stripe Payment Intents.
type StripeProvider struct {
	intents       stripePaymentIntentAPI
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:       intents,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent creates a Stripe Payment Intent for the order total.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.Metadata = make(map[string]string, len(req.Metadata)+1)
	params.Metadata["order_id"] = req.OrderID
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, stripeProviderError("create_intent", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return Intent{
		Provider:     "stripe",
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		Raw:          raw,
	}, nil
}

// VerifyWebhook authenticates the Stripe signature and maps the event to a settlement outcome.
func (p *StripeProvider) VerifyWebhook(ctx context.Context, payload []byte, header http.Header) (Event, error) {
	if p == nil {
		return Event{}, errors.New("stripe: provider is nil")
	}

	// Pinning the SDK's expected API version would reject replayed events from
	// accounts on a different version, so only the signature is enforced here.
	signed, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var outcome Outcome
	switch signed.Type {
	case "payment_intent.succeeded":
		outcome = OutcomeSucceeded
	case "payment_intent.payment_failed":
		outcome = OutcomeFailed
	default:
		return Event{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, signed.Type)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(signed.Data.Raw, &intent); err != nil {
		return Event{}, fmt.Errorf("stripe: decode event payload: %w", err)
	}
	if intent.ID == "" {
		return Event{}, errors.New("stripe: event payload missing payment intent id")
	}

	failureCode := ""
	if outcome == OutcomeFailed && intent.LastPaymentError != nil {
		failureCode = string(intent.LastPaymentError.Code)
	}

	occurredAt := p.clock()
	if signed.Created != 0 {
		occurredAt = time.Unix(signed.Created, 0).UTC()
	}

	raw := map[string]any{}
	_ = json.Unmarshal(signed.Data.Raw, &raw)

	p.logger(ctx, "payments.stripe.webhook.verified", map[string]any{
		"eventId":       signed.ID,
		"eventType":     signed.Type,
		"paymentIntent": intent.ID,
	})

	return Event{
		Provider:    "stripe",
		EventID:     signed.ID,
		Reference:   intent.ID,
		Outcome:     outcome,
		FailureCode: failureCode,
		Amount:      intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		OccurredAt:  occurredAt,
		Raw:         raw,
	}, nil
}

func stripeProviderError(op string, err error) error {
	retryable := false
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			retryable = true
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			retryable = true
		}
	}
	return &ProviderError{Provider: "stripe", Op: op, Retryable: retryable, Err: err}
}
