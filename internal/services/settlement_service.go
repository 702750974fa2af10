package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/repositories"
)

const (
	notificationPaymentConfirmed = "order.payment.confirmed"
	notificationPaymentFailed    = "order.payment.failed"
)

// ErrSettlementInvalidEvent signals a canonical event missing required fields.
var ErrSettlementInvalidEvent = errors.New("settlement: invalid event")

// SettlementServiceDeps bundles collaborators required to construct the settlement service.
type SettlementServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Events     repositories.WebhookEventRepository
	UnitOfWork repositories.UnitOfWork
	Notifier   Notifier
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type settlementService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	events     repositories.WebhookEventRepository
	unitOfWork repositories.UnitOfWork
	notifier   Notifier
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

var _ SettlementService = (*settlementService)(nil)

// NewSettlementService wires dependencies into a concrete SettlementService implementation.
func NewSettlementService(deps SettlementServiceDeps) (SettlementService, error) {
	if deps.Orders == nil {
		return nil, errors.New("settlement service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("settlement service: payment repository is required")
	}
	if deps.Events == nil {
		return nil, errors.New("settlement service: webhook event repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("settlement service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &settlementService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		events:     deps.Events,
		unitOfWork: deps.UnitOfWork,
		notifier:   deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Apply reconciles one verified gateway event against payment and order state.
// Events for the same reference serialize on the payment row lock; duplicates
// and out-of-order deliveries resolve through the transition rules, not
// arrival order. All writes happen in a single transaction.
func (s *settlementService) Apply(ctx context.Context, event payments.Event) (SettlementResult, error) {
	reference := strings.TrimSpace(event.Reference)
	if reference == "" {
		return SettlementResult{}, fmt.Errorf("%w: provider reference is required", ErrSettlementInvalidEvent)
	}
	if event.Outcome != payments.OutcomeSucceeded && event.Outcome != payments.OutcomeFailed {
		return SettlementResult{}, fmt.Errorf("%w: outcome %q", ErrSettlementInvalidEvent, event.Outcome)
	}

	now := s.clock()
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	var rawPayload []byte
	if len(event.Raw) > 0 {
		if encoded, err := json.Marshal(event.Raw); err == nil {
			rawPayload = encoded
		}
	}

	var failureCode *string
	if code := strings.TrimSpace(event.FailureCode); code != "" {
		failureCode = &code
	}

	var (
		result       SettlementResult
		notification *Notification
	)

	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.payments.FindByProviderRefForUpdate(txCtx, event.Provider, reference)
		if err != nil {
			if repositories.IsNotFound(err) {
				// Signature-valid events for references we have not created
				// yet are acknowledged without touching state; the intent
				// creation path may still be in flight.
				result.UnknownRef = true
				s.logger(txCtx, "settlement.reference.unknown", map[string]any{
					"gateway":   event.Provider,
					"reference": reference,
				})
				return nil
			}
			return fmt.Errorf("settlement: load payment: %w", err)
		}

		// Every delivery keeps its raw body in the audit row, so replays and
		// anomalous events stay inspectable even when no state changes.
		firstDelivery, err := s.events.InsertIfAbsent(txCtx, domain.WebhookEvent{
			EventID:     dedupEventID(event, reference),
			Provider:    event.Provider,
			ProviderRef: reference,
			Outcome:     string(event.Outcome),
			Payload:     rawPayload,
			ReceivedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("settlement: record event: %w", err)
		}

		result.OrderID = payment.OrderID
		result.PaymentStatus = payment.Status

		switch {
		case payment.Status == domain.PaymentStatusPending && event.Outcome == payments.OutcomeSucceeded:
			if err := s.settle(txCtx, payment, domain.PaymentStatusPaid, nil, rawPayload, occurredAt, now); err != nil {
				return err
			}
			result.Applied = true
			result.PaymentStatus = domain.PaymentStatusPaid
			if firstDelivery {
				notification = s.buildNotification(txCtx, notificationPaymentConfirmed, payment, occurredAt)
			}

		case payment.Status == domain.PaymentStatusPending && event.Outcome == payments.OutcomeFailed:
			if err := s.settle(txCtx, payment, domain.PaymentStatusFailed, failureCode, rawPayload, occurredAt, now); err != nil {
				return err
			}
			result.Applied = true
			result.PaymentStatus = domain.PaymentStatusFailed
			if firstDelivery {
				notification = s.buildNotification(txCtx, notificationPaymentFailed, payment, occurredAt)
			}

		case payment.Status == domain.PaymentStatusPaid && event.Outcome == payments.OutcomeSucceeded:
			// Replayed success for a settled reference. The audit row above
			// is the only effect.
			result.Duplicate = true

		case payment.Status == domain.PaymentStatusPaid && event.Outcome == payments.OutcomeFailed:
			// PAID is terminal and must not regress.
			result.Anomaly = true
			s.logger(txCtx, "settlement.anomaly.failed_after_paid", map[string]any{
				"gateway":   event.Provider,
				"reference": reference,
				"payment":   payment.ID,
			})

		case payment.Status == domain.PaymentStatusFailed && event.Outcome == payments.OutcomeSucceeded:
			// Gateways do not reissue references; a success replay on a
			// failed reference is recorded but never applied.
			result.Anomaly = true
			s.logger(txCtx, "settlement.anomaly.succeeded_after_failed", map[string]any{
				"gateway":   event.Provider,
				"reference": reference,
				"payment":   payment.ID,
			})

		default:
			result.Duplicate = true
		}

		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	if notification != nil && s.notifier != nil {
		if err := s.notifier.Publish(ctx, *notification); err != nil {
			s.logger(ctx, "settlement.notify.failed", map[string]any{
				"order": notification.OrderID,
				"type":  notification.Type,
				"error": err.Error(),
			})
		}
	}

	return result, nil
}

// settle writes the terminal payment state and the order's payment fields as
// one unit inside the enclosing transaction.
func (s *settlementService) settle(ctx context.Context, payment domain.Payment, status domain.PaymentStatus, failureCode *string, raw []byte, occurredAt, now time.Time) error {
	if err := s.payments.UpdateStatus(ctx, payment.ID, status, failureCode, raw, &occurredAt, now); err != nil {
		return fmt.Errorf("settlement: update payment: %w", err)
	}

	if _, err := s.orders.FindByIDForUpdate(ctx, payment.OrderID); err != nil {
		return fmt.Errorf("settlement: lock order: %w", err)
	}

	var paidAt *time.Time
	if status == domain.PaymentStatusPaid {
		paidAt = &occurredAt
	}
	if err := s.orders.UpdatePaymentState(ctx, payment.OrderID, status, paidAt, now); err != nil {
		return fmt.Errorf("settlement: update order: %w", err)
	}
	return nil
}

func (s *settlementService) buildNotification(ctx context.Context, kind string, payment domain.Payment, occurredAt time.Time) *Notification {
	n := &Notification{
		Type:       kind,
		OrderID:    payment.OrderID,
		Status:     string(domain.PaymentStatusPaid),
		OccurredAt: occurredAt,
		Metadata: map[string]string{
			"gateway":   payment.Provider,
			"reference": payment.ProviderRef,
		},
	}
	if kind == notificationPaymentFailed {
		n.Status = string(domain.PaymentStatusFailed)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		s.logger(ctx, "settlement.notify.order_lookup_failed", map[string]any{
			"order": payment.OrderID,
			"error": err.Error(),
		})
		return n
	}
	n.OrderNumber = order.OrderNumber
	n.Recipient = order.Contact.Email
	return n
}

// dedupEventID prefers the provider's own event id; providers without one fall
// back to reference plus outcome.
func dedupEventID(event payments.Event, reference string) string {
	if id := strings.TrimSpace(event.EventID); id != "" {
		return id
	}
	return reference + ":" + string(event.Outcome)
}
