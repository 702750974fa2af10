package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	paystackSignatureHeader = "X-Paystack-Signature"
	defaultPaystackBaseURL  = "https://api.paystack.co"
)

// PaystackLogger defines the logging contract for Paystack provider operations.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

// PaystackProviderConfig configures the PaystackProvider.
type PaystackProviderConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     PaystackLogger
	Clock      func() time.Time
}

// PaystackProvider implements the Provider interface against the Paystack REST API.
// The Paystack flow is redirect based: initialising a transaction yields an
// authorization URL the customer completes the charge on.
type PaystackProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*paystackInitializeData]
	clock     func() time.Time
	logger    PaystackLogger
}

// NewPaystackProvider constructs a Paystack Provider using the given configuration.
func NewPaystackProvider(cfg PaystackProviderConfig) (*PaystackProvider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errors.New("paystack: secret key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	breaker := gobreaker.NewCircuitBreaker[*paystackInitializeData](gobreaker.Settings{
		Name:    "paystack",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &PaystackProvider{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    httpClient,
		breaker:   breaker,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent initialises a Paystack transaction and returns the authorization URL handoff.
func (p *PaystackProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("paystack: provider is nil")
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		return Intent{}, fmt.Errorf("%w: paystack requires a customer email", ErrInvalidIntentInput)
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	metadata["order_id"] = req.OrderID
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	body := paystackInitializeRequest{
		Email:     req.CustomerEmail,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
		Reference: req.Reference,
		Metadata:  metadata,
	}

	data, err := p.breaker.Execute(func() (*paystackInitializeData, error) {
		return p.initializeTransaction(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Intent{}, &ProviderError{Provider: "paystack", Op: "create_intent", Retryable: true, Err: err}
		}
		return Intent{}, err
	}

	p.logger(ctx, "payments.paystack.transaction.initialized", map[string]any{
		"reference": data.Reference,
		"amount":    req.Amount,
		"currency":  body.Currency,
	})

	return Intent{
		Provider:    "paystack",
		Reference:   data.Reference,
		RedirectURL: data.AuthorizationURL,
		Raw: map[string]any{
			"authorization_url": data.AuthorizationURL,
			"access_code":       data.AccessCode,
			"reference":         data.Reference,
		},
	}, nil
}

// VerifyWebhook authenticates the Paystack signature and maps the event to a settlement outcome.
func (p *PaystackProvider) VerifyWebhook(ctx context.Context, payload []byte, header http.Header) (Event, error) {
	if p == nil {
		return Event{}, errors.New("paystack: provider is nil")
	}

	signature := strings.TrimSpace(header.Get(paystackSignatureHeader))
	if signature == "" {
		return Event{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, paystackSignatureHeader)
	}

	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return Event{}, ErrInvalidSignature
	}

	var envelope paystackWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("paystack: decode event payload: %w", err)
	}

	var outcome Outcome
	switch envelope.Event {
	case "charge.success":
		outcome = OutcomeSucceeded
	case "charge.failed":
		outcome = OutcomeFailed
	default:
		return Event{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, envelope.Event)
	}

	if envelope.Data.Reference == "" {
		return Event{}, errors.New("paystack: event payload missing reference")
	}

	failureCode := ""
	if outcome == OutcomeFailed {
		failureCode = strings.TrimSpace(envelope.Data.GatewayResponse)
	}

	occurredAt := p.clock()
	if envelope.Data.PaidAt != "" {
		if parsed, err := time.Parse(time.RFC3339, envelope.Data.PaidAt); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	raw := map[string]any{}
	_ = json.Unmarshal(payload, &raw)

	eventID := paystackEventID(envelope, payload)

	p.logger(ctx, "payments.paystack.webhook.verified", map[string]any{
		"eventId":   eventID,
		"eventType": envelope.Event,
		"reference": envelope.Data.Reference,
	})

	return Event{
		Provider:    "paystack",
		EventID:     eventID,
		Reference:   envelope.Data.Reference,
		Outcome:     outcome,
		FailureCode: failureCode,
		Amount:      envelope.Data.Amount,
		Currency:    strings.ToUpper(envelope.Data.Currency),
		OccurredAt:  occurredAt,
		Raw:         raw,
	}, nil
}

func (p *PaystackProvider) initializeTransaction(ctx context.Context, body paystackInitializeRequest) (*paystackInitializeData, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("paystack: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "paystack", Op: "create_intent", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Provider: "paystack", Op: "create_intent", Retryable: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		return nil, &ProviderError{
			Provider:  "paystack",
			Op:        "create_intent",
			Retryable: retryable,
			Err:       fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}

	var decoded paystackInitializeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("paystack: decode response: %w", err)
	}
	if !decoded.Status {
		return nil, &ProviderError{
			Provider: "paystack",
			Op:       "create_intent",
			Err:      fmt.Errorf("initialize rejected: %s", decoded.Message),
		}
	}
	if decoded.Data.AuthorizationURL == "" || decoded.Data.Reference == "" {
		return nil, errors.New("paystack: initialize response missing authorization url or reference")
	}
	return &decoded.Data, nil
}

func paystackEventID(envelope paystackWebhookEnvelope, payload []byte) string {
	if envelope.Data.ID != 0 {
		return fmt.Sprintf("%s:%d", envelope.Event, envelope.Data.ID)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s", envelope.Event, hex.EncodeToString(sum[:16]))
}

type paystackInitializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency,omitempty"`
	Reference string            `json:"reference,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type paystackInitializeResponse struct {
	Status  bool                   `json:"status"`
	Message string                 `json:"message"`
	Data    paystackInitializeData `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackWebhookEnvelope struct {
	Event string              `json:"event"`
	Data  paystackWebhookData `json:"data"`
}

type paystackWebhookData struct {
	ID              int64  `json:"id"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	GatewayResponse string `json:"gateway_response"`
	PaidAt          string `json:"paid_at"`
}
