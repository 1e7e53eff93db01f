package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a vendor listing inside a tenant database.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;primaryKey"`
	VendorID    uuid.UUID        `gorm:"column:vendor_id;not null;index"`
	SKU         string           `gorm:"column:sku;not null;uniqueIndex"`
	Title       string           `gorm:"column:title;not null"`
	Description *string          `gorm:"column:description"`
	PriceCents  int64            `gorm:"column:price_cents;not null"`
	Currency    string           `gorm:"column:currency;not null;default:'USD'"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant carries the sellable unit and its stock counters.
type ProductVariant struct {
	ID               uuid.UUID  `gorm:"column:id;primaryKey"`
	ProductID        uuid.UUID  `gorm:"column:product_id;not null;index"`
	SKU              string     `gorm:"column:sku;not null;uniqueIndex"`
	Name             string     `gorm:"column:name;not null"`
	PriceCents       *int64     `gorm:"column:price_cents"`
	StockQty         int        `gorm:"column:stock_qty;not null;default:0"`
	BackorderAllowed bool       `gorm:"column:backorder_allowed;not null;default:false"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        *time.Time `gorm:"column:deleted_at;index"`
}

// EffectivePriceCents resolves the variant price, falling back to the parent.
func (v ProductVariant) EffectivePriceCents(parent Product) int64 {
	if v.PriceCents != nil {
		return *v.PriceCents
	}
	return parent.PriceCents
}
