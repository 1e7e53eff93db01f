package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// MarketplaceProvisionedEvent signals a tenant database is ready.
type MarketplaceProvisionedEvent struct {
	MarketplaceID uuid.UUID `json:"marketplace_id"`
	Slug          string    `json:"slug"`
	Domain        string    `json:"domain"`
	Driver        string    `json:"driver"`
	DatabaseName  string    `json:"database_name"`
}

// MarketplaceSuspendedEvent is emitted when an operator suspends a tenant.
type MarketplaceSuspendedEvent struct {
	MarketplaceID uuid.UUID `json:"marketplace_id"`
	Slug          string    `json:"slug"`
	Reason        string    `json:"reason,omitempty"`
}

// OrderPlacedEvent signals a new order committed with its stock decrements.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	TotalCents    int64               `json:"total_cents"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	VendorIDs     []uuid.UUID         `json:"vendor_ids"`
}

// OrderPaidEvent is emitted when a payment is confirmed against an order.
type OrderPaidEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	TxHash          string    `json:"tx_hash,omitempty"`
	Network         string    `json:"network,omitempty"`
	CommissionCents int64     `json:"commission_cents"`
	PayoutCents     int64     `json:"payout_cents"`
	PaidAt          time.Time `json:"paid_at"`
}

// OrderCanceledEvent is emitted when a pending order is canceled and its
// stock restored.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CanceledAt  time.Time `json:"canceled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderFulfilledEvent surfaces the aggregate fulfillment transition.
type OrderFulfilledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

// OrderExpiredEvent is emitted when an unpaid order passes its payment window.
type OrderExpiredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// KYCSubmittedEvent tells reviewers a submission is waiting.
type KYCSubmittedEvent struct {
	RecordID      uuid.UUID        `json:"record_id"`
	MarketplaceID uuid.UUID        `json:"marketplace_id"`
	SubjectID     uuid.UUID        `json:"subject_id"`
	SubjectType   enums.KYCSubject `json:"subject_type"`
}

// KYCDecidedEvent reports the reviewer's decision.
type KYCDecidedEvent struct {
	RecordID      uuid.UUID       `json:"record_id"`
	MarketplaceID uuid.UUID       `json:"marketplace_id"`
	SubjectID     uuid.UUID       `json:"subject_id"`
	Status        enums.KYCStatus `json:"status"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// StockDepletedEvent is emitted when a checkout drains a variant to zero.
type StockDepletedEvent struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
}

// CartConvertedEvent marks a cart as consumed by checkout.
type CartConvertedEvent struct {
	CartID  uuid.UUID `json:"cart_id"`
	OrderID uuid.UUID `json:"order_id"`
}
