package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Marketplace is the platform-side registration of a tenant.
type Marketplace struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string                  `gorm:"column:name;not null"`
	Slug            string                  `gorm:"column:slug;not null;uniqueIndex"`
	Domain          string                  `gorm:"column:domain;not null;uniqueIndex"`
	Status          enums.MarketplaceStatus `gorm:"column:status;not null;default:'pending'"`
	OwnerEmail      string                  `gorm:"column:owner_email;not null"`
	CommissionRate  string                  `gorm:"column:commission_rate;type:numeric(5,2);not null;default:'10.00'"`
	Connection      *TenantConnection       `gorm:"foreignKey:MarketplaceID;constraint:OnDelete:CASCADE"`
	ProvisionedAt   *time.Time              `gorm:"column:provisioned_at"`
	SuspendedAt     *time.Time              `gorm:"column:suspended_at"`
	LastFailure     *string                 `gorm:"column:last_failure"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TenantConnection stores how to reach a tenant's dedicated database.
// The password is sealed with the tenancy encryption key before it lands here.
type TenantConnection struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MarketplaceID     uuid.UUID `gorm:"column:marketplace_id;type:uuid;not null;uniqueIndex"`
	Driver            string    `gorm:"column:driver;not null"`
	Host              string    `gorm:"column:host;not null"`
	Port              int       `gorm:"column:port;not null"`
	DatabaseName      string    `gorm:"column:database_name;not null"`
	Username          string    `gorm:"column:username;not null"`
	EncryptedPassword []byte    `gorm:"column:encrypted_password;not null"`
	SSLMode           string    `gorm:"column:ssl_mode;not null;default:'require'"`
	MigratedVersion   int64     `gorm:"column:migrated_version;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
