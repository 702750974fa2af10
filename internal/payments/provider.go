package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Outcome enumerates the normalised webhook outcomes shared across providers.
type Outcome string

const (
	// OutcomeSucceeded indicates the gateway reports the charge as captured.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed indicates the gateway reports a failure and no further action is possible.
	OutcomeFailed Outcome = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrAmountTooSmall is returned when the charge amount is below the gateway floor.
	ErrAmountTooSmall = errors.New("payments: amount below provider minimum")
	// ErrInvalidIntentInput is returned when a provider rejects the intent request
	// for a caller-correctable reason, such as a missing customer email.
	ErrInvalidIntentInput = errors.New("payments: invalid intent input")
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrIgnoredEvent is returned when a webhook carries an event type the adapter does not settle on.
	ErrIgnoredEvent = errors.New("payments: event type not relevant")
)

// ProviderError wraps gateway failures with a retryability classification.
type ProviderError struct {
	Provider  string
	Op        string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("payments: %s %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the wrapped failure is transient.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}

// IntentRequest captures the payload required to initiate a charge.
type IntentRequest struct {
	OrderID        string
	Reference      string
	Amount         int64
	Currency       string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent represents the gateway handoff returned to the client.
type Intent struct {
	Provider     string
	Reference    string
	ClientSecret string
	RedirectURL  string
	Raw          map[string]any
}

// Event normalises a verified gateway webhook for reconciliation.
type Event struct {
	Provider    string
	EventID     string
	Reference   string
	Outcome     Outcome
	FailureCode string
	Amount      int64
	Currency    string
	OccurredAt  time.Time
	Raw         map[string]any
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	// CreateIntent initiates a charge and returns the client handoff material.
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// VerifyWebhook authenticates the raw payload and maps it to a normalised Event.
	VerifyWebhook(ctx context.Context, payload []byte, header http.Header) (Event, error)
}

// Manager coordinates provider selection and enforces per-provider charge floors.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	minimumCharges  map[string]int64
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when the caller expresses no preference.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// WithMinimumCharges configures per-provider charge floors in minor units.
func WithMinimumCharges(minimums map[string]int64) ManagerOption {
	return func(m *Manager) {
		if len(minimums) == 0 {
			return
		}
		if m.minimumCharges == nil {
			m.minimumCharges = make(map[string]int64, len(minimums))
		}
		for k, v := range minimums {
			if v > 0 {
				m.minimumCharges[strings.TrimSpace(strings.ToLower(k))] = v
			}
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["paystack"]; ok {
		m.defaultProvider = "paystack"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the provider registered under the given key, falling back to the default.
func (m *Manager) Resolve(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// MinimumCharge returns the configured floor for the provider, zero when unconfigured.
func (m *Manager) MinimumCharge(provider string) int64 {
	if m == nil || m.minimumCharges == nil {
		return 0
	}
	return m.minimumCharges[strings.TrimSpace(strings.ToLower(provider))]
}

// CreateIntent delegates to the resolved provider after enforcing the charge floor.
func (m *Manager) CreateIntent(ctx context.Context, preferred string, req IntentRequest) (Intent, error) {
	key, provider, err := m.Resolve(preferred)
	if err != nil {
		return Intent{}, err
	}
	if floor := m.MinimumCharge(key); floor > 0 && req.Amount < floor {
		return Intent{}, fmt.Errorf("%w: %d < %d", ErrAmountTooSmall, req.Amount, floor)
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// VerifyWebhook authenticates the payload with the named provider's adapter.
func (m *Manager) VerifyWebhook(ctx context.Context, providerKey string, payload []byte, header http.Header) (Event, error) {
	key, provider, err := m.Resolve(providerKey)
	if err != nil {
		return Event{}, err
	}
	event, err := provider.VerifyWebhook(ctx, payload, header)
	if err != nil {
		return Event{}, err
	}
	event.Provider = key
	return event, nil
}
