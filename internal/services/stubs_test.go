package services

import (
	"context"
	"time"

	domain "github.com/feastline/api/internal/domain"
)

type stubOrderRepo struct {
	insertFn             func(ctx context.Context, order domain.Order) error
	findByIDFn           func(ctx context.Context, orderID string) (domain.Order, error)
	findByIDForUpdateFn  func(ctx context.Context, orderID string) (domain.Order, error)
	updateFulfillmentFn  func(ctx context.Context, order domain.Order) error
	updatePaymentStateFn func(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt *time.Time, updatedAt time.Time) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepo) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return s.findByIDForUpdateFn(ctx, orderID)
}

func (s *stubOrderRepo) UpdateFulfillment(ctx context.Context, order domain.Order) error {
	return s.updateFulfillmentFn(ctx, order)
}

func (s *stubOrderRepo) UpdatePaymentState(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt *time.Time, updatedAt time.Time) error {
	return s.updatePaymentStateFn(ctx, orderID, status, paidAt, updatedAt)
}

type stubPaymentRepo struct {
	insertFn                  func(ctx context.Context, payment domain.Payment) error
	findByProviderRefForUpdFn func(ctx context.Context, provider, reference string) (domain.Payment, error)
	updateStatusFn            func(ctx context.Context, paymentID string, status domain.PaymentStatus, failureCode *string, gatewayResponse []byte, settledAt *time.Time, updatedAt time.Time) error
	listByOrderFn             func(ctx context.Context, orderID string) ([]domain.Payment, error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	return s.insertFn(ctx, payment)
}

func (s *stubPaymentRepo) FindByProviderRefForUpdate(ctx context.Context, provider, reference string) (domain.Payment, error) {
	return s.findByProviderRefForUpdFn(ctx, provider, reference)
}

func (s *stubPaymentRepo) UpdateStatus(ctx context.Context, paymentID string, status domain.PaymentStatus, failureCode *string, gatewayResponse []byte, settledAt *time.Time, updatedAt time.Time) error {
	return s.updateStatusFn(ctx, paymentID, status, failureCode, gatewayResponse, settledAt, updatedAt)
}

func (s *stubPaymentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return s.listByOrderFn(ctx, orderID)
}

type stubExtrasRepo struct {
	listGlobalGroupsFn  func(ctx context.Context) ([]domain.ExtraGroup, error)
	getGroupsFn         func(ctx context.Context, groupIDs []string) (map[string]domain.ExtraGroup, error)
	listLinksForItemsFn func(ctx context.Context, catalogItemIDs []string) (map[string][]domain.CatalogExtraLink, error)
}

func (s *stubExtrasRepo) ListGlobalGroups(ctx context.Context) ([]domain.ExtraGroup, error) {
	if s.listGlobalGroupsFn == nil {
		return nil, nil
	}
	return s.listGlobalGroupsFn(ctx)
}

func (s *stubExtrasRepo) GetGroups(ctx context.Context, groupIDs []string) (map[string]domain.ExtraGroup, error) {
	if s.getGroupsFn == nil {
		return map[string]domain.ExtraGroup{}, nil
	}
	return s.getGroupsFn(ctx, groupIDs)
}

func (s *stubExtrasRepo) ListLinksForItems(ctx context.Context, catalogItemIDs []string) (map[string][]domain.CatalogExtraLink, error) {
	if s.listLinksForItemsFn == nil {
		return map[string][]domain.CatalogExtraLink{}, nil
	}
	return s.listLinksForItemsFn(ctx, catalogItemIDs)
}

type stubPricingConfigRepo struct {
	getFn  func(ctx context.Context) (domain.PricingConfig, error)
	saveFn func(ctx context.Context, cfg domain.PricingConfig, updatedAt time.Time) error
}

func (s *stubPricingConfigRepo) Get(ctx context.Context) (domain.PricingConfig, error) {
	return s.getFn(ctx)
}

func (s *stubPricingConfigRepo) Save(ctx context.Context, cfg domain.PricingConfig, updatedAt time.Time) error {
	if s.saveFn == nil {
		return nil
	}
	return s.saveFn(ctx, cfg, updatedAt)
}

type stubWebhookEventRepo struct {
	insertIfAbsentFn func(ctx context.Context, event domain.WebhookEvent) (bool, error)
}

func (s *stubWebhookEventRepo) InsertIfAbsent(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	return s.insertIfAbsentFn(ctx, event)
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	return s.nextFn(ctx, counterID, step)
}

type stubNotifier struct {
	publishFn func(ctx context.Context, n Notification) error
	published []Notification
}

func (s *stubNotifier) Publish(ctx context.Context, n Notification) error {
	s.published = append(s.published, n)
	if s.publishFn == nil {
		return nil
	}
	return s.publishFn(ctx, n)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
