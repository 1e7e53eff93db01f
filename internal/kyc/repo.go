package kyc

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Repository persists identity submissions in the platform database.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to KYC record operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create persists a new submission.
func (r *Repository) Create(ctx context.Context, record *models.KYCRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// Save writes the full record back.
func (r *Repository) Save(ctx context.Context, record *models.KYCRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// FindByID loads a submission by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.KYCRecord, error) {
	var record models.KYCRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindBySubject loads the newest submission for one subject inside a
// marketplace. Rejected vendor submissions are superseded by fresh rows,
// so only the latest one reflects the subject's standing.
func (r *Repository) FindBySubject(ctx context.Context, marketplaceID, subjectID uuid.UUID, subjectType enums.KYCSubject) (*models.KYCRecord, error) {
	var record models.KYCRecord
	err := r.db.WithContext(ctx).
		Where("marketplace_id = ? AND subject_id = ? AND subject_type = ?", marketplaceID, subjectID, subjectType).
		Order("submission_count DESC, created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPending returns submissions waiting for review, oldest first.
func (r *Repository) ListPending(ctx context.Context, marketplaceID uuid.UUID, limit int) ([]models.KYCRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Where("status = ?", enums.KYCStatusPending)
	if marketplaceID != uuid.Nil {
		query = query.Where("marketplace_id = ?", marketplaceID)
	}
	var records []models.KYCRecord
	if err := query.Order("submitted_at ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
