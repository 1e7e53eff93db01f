package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/repo"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Repository handles vendor persistence inside the tenant database.
type Repository struct {
	base repo.Base
}

// NewRepository builds a tenant-scoped vendor repository.
func NewRepository() *Repository {
	return &Repository{}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// Create persists a vendor row.
func (r *Repository) Create(ctx context.Context, vendor *models.Vendor) error {
	if vendor == nil {
		return errors.New("vendor is required")
	}
	conn, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	if vendor.ID == uuid.Nil {
		vendor.ID = uuid.New()
	}
	return conn.Create(vendor).Error
}

// FindByID loads a vendor by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var vendor models.Vendor
	if err := conn.Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindBySlug loads a vendor by its slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Vendor, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var vendor models.Vendor
	if err := conn.Where("slug = ?", slug).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// List returns active vendors ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Vendor, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Vendor
	err = conn.Where("is_active = ?", true).
		Order("name ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateKYC syncs the vendor row with a platform KYC decision.
func (r *Repository) UpdateKYC(ctx context.Context, id uuid.UUID, status enums.KYCStatus, recordID uuid.UUID) error {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&models.Vendor{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"kyc_status":    status,
			"kyc_record_id": recordID,
		}).Error
}
