package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// CartRecord is a buyer's working cart inside a tenant database.
type CartRecord struct {
	ID         uuid.UUID        `gorm:"column:id;primaryKey"`
	CustomerID uuid.UUID        `gorm:"column:customer_id;not null;index"`
	Status     enums.CartStatus `gorm:"column:status;not null;default:'open'"`
	CouponCode *string          `gorm:"column:coupon_code"`
	Items      []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the table name derived from the struct name.
func (CartRecord) TableName() string {
	return "carts"
}

// CartItem is one variant line inside a cart.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;not null;index"`
	VariantID uuid.UUID `gorm:"column:variant_id;not null"`
	Qty       int       `gorm:"column:qty;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
