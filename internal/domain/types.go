package domain

import (
	"time"

	"github.com/feastline/api/internal/money"
)

// DeliveryMethod enumerates supported delivery service levels.
type DeliveryMethod string

const (
	// DeliveryStandard is the default delivery service level.
	DeliveryStandard DeliveryMethod = "standard"
	// DeliveryExpress is the expedited delivery service level.
	DeliveryExpress DeliveryMethod = "express"
)

// Valid reports whether the delivery method is one of the supported levels.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryStandard || m == DeliveryExpress
}

// OrderStatus enumerates fulfillment lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not yet accepted by the kitchen.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the kitchen has accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the kitchen is actively preparing the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is packed and awaiting courier pickup.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusOutForDelivery indicates a courier has picked up the order.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order has reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further fulfillment transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus enumerates settlement states for an order's payment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has been initiated but not yet settled.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway confirmed a successful charge.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway reported the charge failed.
	PaymentStatusFailed PaymentStatus = "failed"
)

// SelectedExtra records one extras choice attached to a cart line.
type SelectedExtra struct {
	GroupID string
	ItemID  string
}

// CartLine mirrors a catalog item and its extras at the time of checkout.
// VariantPrice, when set, replaces UnitPrice for the line base amount.
type CartLine struct {
	CatalogItemID string
	Name          string
	UnitPrice     money.Amount
	VariantPrice  *money.Amount
	Quantity      int
	Extras        []SelectedExtra
}

// OrderContact stores the customer contact snapshot used for notifications.
type OrderContact struct {
	Email string
	Phone string
}

// Order captures an order header together with its priced lines.
type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	Currency       string
	DeliveryMethod DeliveryMethod
	Lines          []CartLine
	Breakdown      PriceBreakdown
	Contact        OrderContact
	CancelReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
}

// Payment encapsulates gateway references and settlement state for an order.
// GatewayResponse holds the raw provider payload of the settling event for audit.
type Payment struct {
	ID              string
	OrderID         string
	Provider        string
	ProviderRef     string
	Status          PaymentStatus
	Amount          money.Amount
	Currency        string
	HandoffURL      string
	FailureCode     *string
	GatewayResponse []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SettledAt       *time.Time
}

// WebhookEvent records a processed gateway event for at-most-once side effects.
// Payload keeps the raw provider body for audit, including replayed deliveries.
type WebhookEvent struct {
	EventID     string
	Provider    string
	ProviderRef string
	Outcome     string
	Payload     []byte
	ReceivedAt  time.Time
}
