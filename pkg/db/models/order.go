package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

// Order is a placed order inside a tenant database. Prices and the
// commission rate are frozen at checkout time.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;not null;index"`
	CartID          *uuid.UUID          `gorm:"column:cart_id"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentNetwork  *string             `gorm:"column:payment_network"`
	PaymentTxHash   *string             `gorm:"column:payment_tx_hash"`
	CryptoAmount    *string             `gorm:"column:crypto_amount"`
	SubtotalCents   int64               `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int64               `gorm:"column:discount_cents;not null;default:0"`
	TaxCents        int64               `gorm:"column:tax_cents;not null;default:0"`
	CommissionRate  string              `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionCents int64               `gorm:"column:commission_cents;not null"`
	PayoutCents     int64               `gorm:"column:payout_cents;not null"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:json"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CanceledAt      *time.Time          `gorm:"column:canceled_at"`
	FulfilledAt     *time.Time          `gorm:"column:fulfilled_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots one purchased variant line. The commission rate is
// the fulfilling vendor's rate at placement time; line total follows
// subtotal - discount + tax with discount and tax currently always zero.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;not null;index"`
	VendorID          uuid.UUID               `gorm:"column:vendor_id;not null;index"`
	ProductID         uuid.UUID               `gorm:"column:product_id;not null"`
	VariantID         uuid.UUID               `gorm:"column:variant_id;not null"`
	Title             string                  `gorm:"column:title;not null"`
	SKU               string                  `gorm:"column:sku;not null"`
	UnitPriceCents    int64                   `gorm:"column:unit_price_cents;not null"`
	Qty               int                     `gorm:"column:qty;not null"`
	DiscountCents     int64                   `gorm:"column:discount_cents;not null;default:0"`
	TaxCents          int64                   `gorm:"column:tax_cents;not null;default:0"`
	LineTotalCents    int64                   `gorm:"column:line_total_cents;not null"`
	CommissionRate    string                  `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionCents   int64                   `gorm:"column:commission_cents;not null"`
	VendorPayoutCents int64                   `gorm:"column:vendor_payout_cents;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;not null;default:'unfulfilled'"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
