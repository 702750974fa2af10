package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/repositories"
)

const notificationStatusChanged = "order.status.changed"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a transition not present in the state diagram.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
)

// Forward transitions of the fulfillment lifecycle. Cancellation is handled
// separately since it is reachable from any non-terminal state.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusConfirmed},
	domain.OrderStatusConfirmed:      {domain.OrderStatusPreparing},
	domain.OrderStatusPreparing:      {domain.OrderStatusReady},
	domain.OrderStatusReady:          {domain.OrderStatusOutForDelivery},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	UnitOfWork repositories.UnitOfWork
	Notifier   Notifier
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	unitOfWork repositories.UnitOfWork
	notifier   Notifier
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		unitOfWork: unit,
		notifier:   deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (OrderDetails, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetails{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderDetails{}, s.mapRepositoryError(err)
	}

	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return OrderDetails{}, s.mapRepositoryError(err)
	}

	return OrderDetails{Order: order, Payments: payments}, nil
}

// TransitionStatus advances the fulfillment state machine. The order row is
// locked for the duration of the transaction so concurrent operator updates
// serialize; the status notification is dispatched after commit and never
// rolls the transition back.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if target == "" {
		return domain.Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	var order domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		if !transitionAllowed(current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current.Status, target)
		}

		now := s.clock()
		current.Status = target
		current.UpdatedAt = now
		switch target {
		case domain.OrderStatusDelivered:
			current.DeliveredAt = &now
		case domain.OrderStatusCancelled:
			current.CancelledAt = &now
			if reason := strings.TrimSpace(cmd.Reason); reason != "" {
				current.CancelReason = &reason
			}
		}

		if err := s.orders.UpdateFulfillment(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order":  order.ID,
		"status": string(order.Status),
		"actor":  cmd.ActorID,
	})
	s.notifyStatusChange(ctx, order)

	return order, nil
}

func transitionAllowed(current, target domain.OrderStatus) bool {
	if target == domain.OrderStatusCancelled {
		return !current.Terminal()
	}
	return slices.Contains(orderStateTransitions[current], target)
}

func (s *orderService) notifyStatusChange(ctx context.Context, order domain.Order) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(ctx, Notification{
		Type:        notificationStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Recipient:   order.Contact.Email,
		OccurredAt:  order.UpdatedAt,
		Metadata: map[string]string{
			"delivery_method": string(order.DeliveryMethod),
		},
	})
	if err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"order":  order.ID,
			"status": string(order.Status),
			"error":  err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}
