package handlers

import (
	"context"
	"net/http"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/services"
)

type stubPricingService struct {
	quoteFn        func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error)
	priceFn        func(ctx context.Context, cmd services.QuoteCommand, declared *services.DeclaredBreakdown) (domain.PriceBreakdown, []domain.CartLine, error)
	configFn       func(ctx context.Context) (domain.PricingConfig, error)
	updateConfigFn func(ctx context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error)
}

func (s *stubPricingService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
	return s.quoteFn(ctx, cmd)
}

func (s *stubPricingService) Price(ctx context.Context, cmd services.QuoteCommand, declared *services.DeclaredBreakdown) (domain.PriceBreakdown, []domain.CartLine, error) {
	return s.priceFn(ctx, cmd, declared)
}

func (s *stubPricingService) Config(ctx context.Context) (domain.PricingConfig, error) {
	return s.configFn(ctx)
}

func (s *stubPricingService) UpdateConfig(ctx context.Context, cfg domain.PricingConfig) (domain.PricingConfig, error) {
	return s.updateConfigFn(ctx, cfg)
}

type stubPaymentService struct {
	initiateFn func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentIntentHandle, error)
}

func (s *stubPaymentService) Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentIntentHandle, error) {
	return s.initiateFn(ctx, cmd)
}

type stubSettlementService struct {
	applyFn func(ctx context.Context, event payments.Event) (services.SettlementResult, error)
}

func (s *stubSettlementService) Apply(ctx context.Context, event payments.Event) (services.SettlementResult, error) {
	return s.applyFn(ctx, event)
}

type stubOrderService struct {
	getFn        func(ctx context.Context, orderID string) (services.OrderDetails, error)
	transitionFn func(ctx context.Context, cmd services.TransitionOrderCommand) (domain.Order, error)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.OrderDetails, error) {
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
	return s.transitionFn(ctx, cmd)
}

type stubProvider struct {
	createIntentFn  func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	verifyWebhookFn func(ctx context.Context, payload []byte, header http.Header) (payments.Event, error)
}

func (s *stubProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	return s.createIntentFn(ctx, req)
}

func (s *stubProvider) VerifyWebhook(ctx context.Context, payload []byte, header http.Header) (payments.Event, error) {
	return s.verifyWebhookFn(ctx, payload, header)
}

var (
	_ services.PricingService    = (*stubPricingService)(nil)
	_ services.PaymentService    = (*stubPaymentService)(nil)
	_ services.SettlementService = (*stubSettlementService)(nil)
	_ services.OrderService      = (*stubOrderService)(nil)
	_ payments.Provider          = (*stubProvider)(nil)
)
