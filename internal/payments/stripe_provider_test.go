package payments

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const stripeTestWebhookSecret = "whsec_test_secret"

type stubIntentAPI struct {
	lastParams *stripe.PaymentIntentParams
	intent     *stripe.PaymentIntent
	err        error
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.lastParams = params
	return s.intent, s.err
}

func newStripeTestProvider(t *testing.T, intents stripePaymentIntentAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: stripeTestWebhookSecret,
		Intents:       intents,
		Clock:         func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func signStripePayload(payload []byte, at time.Time) string {
	signature := webhook.ComputeSignature(at, payload, stripeTestWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func TestStripeCreateIntent(t *testing.T) {
	api := &stubIntentAPI{
		intent: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Amount:       2988,
			Currency:     "ngn",
		},
	}
	provider := newStripeTestProvider(t, api)

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "ord_123",
		Amount:         2988,
		Currency:       "NGN",
		CustomerEmail:  "customer@example.com",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.Reference != "pi_123" {
		t.Fatalf("unexpected reference %q", intent.Reference)
	}
	if intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected client secret %q", intent.ClientSecret)
	}
	if api.lastParams == nil {
		t.Fatal("expected params to be captured")
	}
	if got := stripe.Int64Value(api.lastParams.Amount); got != 2988 {
		t.Fatalf("unexpected amount %d", got)
	}
	if got := stripe.StringValue(api.lastParams.Currency); got != "ngn" {
		t.Fatalf("unexpected currency %q", got)
	}
	if api.lastParams.Metadata["order_id"] != "ord_123" {
		t.Fatalf("expected order id metadata, got %v", api.lastParams.Metadata)
	}
}

func TestStripeCreateIntentClassifiesRateLimit(t *testing.T) {
	api := &stubIntentAPI{err: &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}}
	provider := newStripeTestProvider(t, api)

	_, err := provider.CreateIntent(context.Background(), IntentRequest{OrderID: "ord_123", Amount: 2988, Currency: "NGN"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestStripeCreateIntentClassifiesCardDecline(t *testing.T) {
	api := &stubIntentAPI{err: &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Code: stripe.ErrorCodeCardDeclined}}
	provider := newStripeTestProvider(t, api)

	_, err := provider.CreateIntent(context.Background(), IntentRequest{OrderID: "ord_123", Amount: 2988, Currency: "NGN"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestStripeVerifyWebhookSucceededEvent(t *testing.T) {
	provider := newStripeTestProvider(t, &stubIntentAPI{})

	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","created":1740830340,"data":{"object":{"id":"pi_123","amount":2988,"currency":"ngn","status":"succeeded"}}}`)
	header := http.Header{}
	header.Set(stripeSignatureHeader, signStripePayload(payload, time.Now()))

	event, err := provider.VerifyWebhook(context.Background(), payload, header)
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	if event.Outcome != OutcomeSucceeded {
		t.Fatalf("unexpected outcome %q", event.Outcome)
	}
	if event.EventID != "evt_123" {
		t.Fatalf("unexpected event id %q", event.EventID)
	}
	if event.Reference != "pi_123" {
		t.Fatalf("unexpected reference %q", event.Reference)
	}
	if event.Currency != "NGN" {
		t.Fatalf("unexpected currency %q", event.Currency)
	}
}

func TestStripeVerifyWebhookToleratesOtherAPIVersions(t *testing.T) {
	provider := newStripeTestProvider(t, &stubIntentAPI{})

	payload := []byte(`{"id":"evt_126","type":"payment_intent.succeeded","api_version":"2019-12-03","data":{"object":{"id":"pi_126","amount":2988,"currency":"ngn","status":"succeeded"}}}`)
	header := http.Header{}
	header.Set(stripeSignatureHeader, signStripePayload(payload, time.Now()))

	event, err := provider.VerifyWebhook(context.Background(), payload, header)
	if err != nil {
		t.Fatalf("expected event from an older api version to verify, got %v", err)
	}
	if event.Reference != "pi_126" {
		t.Fatalf("unexpected reference %q", event.Reference)
	}
}

func TestStripeVerifyWebhookFailedEventCarriesCode(t *testing.T) {
	provider := newStripeTestProvider(t, &stubIntentAPI{})

	payload := []byte(`{"id":"evt_124","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_124","amount":2988,"currency":"ngn","last_payment_error":{"code":"card_declined"}}}}`)
	header := http.Header{}
	header.Set(stripeSignatureHeader, signStripePayload(payload, time.Now()))

	event, err := provider.VerifyWebhook(context.Background(), payload, header)
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}
	if event.Outcome != OutcomeFailed {
		t.Fatalf("unexpected outcome %q", event.Outcome)
	}
	if event.FailureCode != "card_declined" {
		t.Fatalf("unexpected failure code %q", event.FailureCode)
	}
}

func TestStripeVerifyWebhookRejectsBadSignature(t *testing.T) {
	provider := newStripeTestProvider(t, &stubIntentAPI{})

	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded"}`)
	header := http.Header{}
	header.Set(stripeSignatureHeader, "t=1,v1=deadbeef")

	_, err := provider.VerifyWebhook(context.Background(), payload, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyWebhookIgnoresUnrelatedEvents(t *testing.T) {
	provider := newStripeTestProvider(t, &stubIntentAPI{})

	payload := []byte(`{"id":"evt_125","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	header := http.Header{}
	header.Set(stripeSignatureHeader, signStripePayload(payload, time.Now()))

	_, err := provider.VerifyWebhook(context.Background(), payload, header)
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}
