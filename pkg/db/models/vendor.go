package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

// Vendor is a seller registered inside one tenant database.
type Vendor struct {
	ID        uuid.UUID       `gorm:"column:id;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Slug      string          `gorm:"column:slug;not null;uniqueIndex"`
	Email     string          `gorm:"column:email;not null"`
	KYCStatus enums.KYCStatus `gorm:"column:kyc_status;not null;default:'unsubmitted'"`
	// CommissionRate overrides the marketplace rate when set.
	CommissionRate *string       `gorm:"column:commission_rate;type:numeric(5,2)"`
	KYCRecordID    *uuid.UUID    `gorm:"column:kyc_record_id"`
	PayoutWallet   *string       `gorm:"column:payout_wallet"`
	Address        types.Address `gorm:"column:address;type:json"`
	IsActive       bool          `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
