package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/repo"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
)

// Repository handles product persistence inside the tenant database
// resolved for the current request.
type Repository struct {
	base repo.Base
}

// NewRepository builds a tenant-scoped product repository.
func NewRepository() *Repository {
	return &Repository{}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// Create persists a product and its variants.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product == nil {
		return errors.New("product is required")
	}
	conn, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	for i := range product.Variants {
		if product.Variants[i].ID == uuid.Nil {
			product.Variants[i].ID = uuid.New()
		}
		product.Variants[i].ProductID = product.ID
	}
	return conn.Create(product).Error
}

// FindByID loads a product with its variants.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var product models.Product
	if err := conn.Preload("Variants", "deleted_at IS NULL").
		Where("id = ?", id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant loads a sellable variant together with its parent product.
func (r *Repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, *models.Product, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, nil, err
	}

	var variant models.ProductVariant
	if err := conn.Where("id = ? AND deleted_at IS NULL", variantID).
		First(&variant).Error; err != nil {
		return nil, nil, err
	}

	var product models.Product
	if err := conn.Where("id = ?", variant.ProductID).
		First(&product).Error; err != nil {
		return nil, nil, err
	}
	return &variant, &product, nil
}

// ListActive returns active products for the storefront.
func (r *Repository) ListActive(ctx context.Context, limit int) ([]models.Product, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Product
	err = conn.Preload("Variants", "deleted_at IS NULL").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DecrementStock atomically takes qty units from a variant. The decrement
// only applies when enough stock remains or the variant allows backorders;
// the condition and the write are one statement, so two concurrent buyers
// can never both take the last unit.
func (r *Repository) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, errors.New("qty must be positive")
	}
	conn, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}

	result := conn.Model(&models.ProductVariant{}).
		Where("id = ? AND deleted_at IS NULL AND (backorder_allowed OR stock_qty >= ?)", variantID, qty).
		Update("stock_qty", gorm.Expr("stock_qty - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RestoreStock returns qty units to a variant, used by order cancellation.
func (r *Repository) RestoreStock(ctx context.Context, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.New("qty must be positive")
	}
	conn, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock_qty", gorm.Expr("stock_qty + ?", qty)).Error
}

// StockRemaining reads the current stock level of a variant.
func (r *Repository) StockRemaining(ctx context.Context, variantID uuid.UUID) (int, error) {
	conn, err := r.base.DB(ctx)
	if err != nil {
		return 0, err
	}
	var variant models.ProductVariant
	if err := conn.Select("stock_qty").
		Where("id = ?", variantID).
		First(&variant).Error; err != nil {
		return 0, err
	}
	return variant.StockQty, nil
}
