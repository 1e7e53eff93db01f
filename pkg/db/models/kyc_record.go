package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

// KYCRecord is an identity verification submission reviewed on the platform.
type KYCRecord struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MarketplaceID   uuid.UUID        `gorm:"column:marketplace_id;type:uuid;not null;index"`
	SubjectID       uuid.UUID        `gorm:"column:subject_id;type:uuid;not null"`
	SubjectType     enums.KYCSubject `gorm:"column:subject_type;not null"`
	Status          enums.KYCStatus  `gorm:"column:status;not null;default:'unsubmitted'"`
	LegalName       string           `gorm:"column:legal_name;not null"`
	DateOfBirth     *time.Time       `gorm:"column:date_of_birth"`
	Address         types.Address    `gorm:"column:address;type:jsonb"`
	Documents       types.JSONMap    `gorm:"column:documents;type:jsonb;not null;default:'{}'"`
	SubmissionCount int              `gorm:"column:submission_count;not null;default:1"`
	IsResubmission  bool             `gorm:"column:is_resubmission;not null;default:false"`
	ReviewerID      *uuid.UUID       `gorm:"column:reviewer_id;type:uuid"`
	ReviewNote      *string          `gorm:"column:review_note"`
	SubmittedAt     *time.Time       `gorm:"column:submitted_at"`
	DecidedAt       *time.Time       `gorm:"column:decided_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
