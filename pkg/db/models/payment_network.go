package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentNetwork describes a blockchain network orders can settle on.
type PaymentNetwork struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null;uniqueIndex"`
	ChainID         int64     `gorm:"column:chain_id;not null"`
	Currency        string    `gorm:"column:currency;not null"`
	USDRate         string    `gorm:"column:usd_rate;type:numeric(18,8);not null"`
	ReceiverAddress string    `gorm:"column:receiver_address;not null"`
	// ExplorerURL is a template with a {hash} placeholder, e.g.
	// https://etherscan.io/tx/{hash}.
	ExplorerURL string `gorm:"column:explorer_url;not null;default:''"`
	Enabled     bool   `gorm:"column:enabled;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
