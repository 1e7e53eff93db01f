package tenancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Repository handles marketplace persistence on the platform database.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to marketplace operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new marketplace row.
func (r *Repository) Create(ctx context.Context, marketplace *models.Marketplace) error {
	if marketplace == nil {
		return errors.New("marketplace is required")
	}
	return r.db.WithContext(ctx).Create(marketplace).Error
}

// FindByID loads a marketplace with its stored connection.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Marketplace, error) {
	var marketplace models.Marketplace
	if err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("id = ?", id).
		First(&marketplace).Error; err != nil {
		return nil, err
	}
	return &marketplace, nil
}

// FindBySlug loads a marketplace by its slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Marketplace, error) {
	var marketplace models.Marketplace
	if err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("slug = ?", slug).
		First(&marketplace).Error; err != nil {
		return nil, err
	}
	return &marketplace, nil
}

// FindByDomain loads a marketplace by its full custom domain.
func (r *Repository) FindByDomain(ctx context.Context, domain string) (*models.Marketplace, error) {
	var marketplace models.Marketplace
	if err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("domain = ?", domain).
		First(&marketplace).Error; err != nil {
		return nil, err
	}
	return &marketplace, nil
}

// List returns marketplaces ordered by creation, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *enums.MarketplaceStatus, limit int) ([]models.Marketplace, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.Marketplace
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListActiveWithConnections returns every active marketplace with its
// stored connection, oldest first. Background workers iterate the tenant
// fleet through here.
func (r *Repository) ListActiveWithConnections(ctx context.Context) ([]models.Marketplace, error) {
	var rows []models.Marketplace
	err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("status = ?", enums.MarketplaceStatusActive).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatus transitions the marketplace status, stamping the matching
// timestamp column.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MarketplaceStatus, failure *string) error {
	updates := map[string]any{
		"status":       status,
		"last_failure": failure,
	}
	now := time.Now()
	switch status {
	case enums.MarketplaceStatusActive:
		updates["provisioned_at"] = now
		updates["suspended_at"] = nil
	case enums.MarketplaceStatusSuspended:
		updates["suspended_at"] = now
	}
	return r.db.WithContext(ctx).
		Model(&models.Marketplace{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SaveConnection upserts the tenant connection record for a marketplace.
func (r *Repository) SaveConnection(ctx context.Context, conn *models.TenantConnection) error {
	if conn == nil {
		return errors.New("connection is required")
	}

	var existing models.TenantConnection
	err := r.db.WithContext(ctx).
		Where("marketplace_id = ?", conn.MarketplaceID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.WithContext(ctx).Create(conn).Error
		}
		return err
	}

	conn.ID = existing.ID
	conn.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(conn).Error
}

// UpdateMigratedVersion records the schema version a tenant database is at.
func (r *Repository) UpdateMigratedVersion(ctx context.Context, marketplaceID uuid.UUID, version int64) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantConnection{}).
		Where("marketplace_id = ?", marketplaceID).
		Update("migrated_version", version).Error
}
