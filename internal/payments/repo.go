package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
)

// Repository maintains the blockchain networks orders can settle on.
// Networks live in the platform database and apply to every tenant.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to payment network operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindEnabledByName loads an enabled network by its name.
func (r *Repository) FindEnabledByName(ctx context.Context, name string) (*models.PaymentNetwork, error) {
	var network models.PaymentNetwork
	err := r.db.WithContext(ctx).
		Where("name = ? AND enabled = ?", name, true).
		First(&network).Error
	if err != nil {
		return nil, err
	}
	return &network, nil
}

// List returns all networks, enabled ones first.
func (r *Repository) List(ctx context.Context) ([]models.PaymentNetwork, error) {
	var networks []models.PaymentNetwork
	err := r.db.WithContext(ctx).
		Order("enabled DESC, name ASC").
		Find(&networks).Error
	if err != nil {
		return nil, err
	}
	return networks, nil
}

// Upsert creates or updates a network keyed by name.
func (r *Repository) Upsert(ctx context.Context, network *models.PaymentNetwork) error {
	var existing models.PaymentNetwork
	err := r.db.WithContext(ctx).Where("name = ?", network.Name).First(&existing).Error
	if err == nil {
		network.ID = existing.ID
		network.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(network).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	if network.ID == uuid.Nil {
		network.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(network).Error
}

// SetEnabled toggles a network without touching its rate or receiver.
func (r *Repository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return r.db.WithContext(ctx).Model(&models.PaymentNetwork{}).
		Where("name = ?", name).
		Update("enabled", enabled).Error
}
