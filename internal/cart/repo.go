package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/repo"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Repository persists carts in the tenant database resolved for the request.
type Repository struct {
	base repo.Base
}

func NewRepository() *Repository {
	return &Repository{}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// FindOpenByCustomer loads the customer's open cart with its items.
func (r *Repository) FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var cart models.CartRecord
	err = handle.
		Preload("Items").
		Where("customer_id = ? AND status = ?", customerID, enums.CartStatusOpen).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByID loads a cart regardless of status.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var cart models.CartRecord
	if err := handle.Preload("Items").Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts an empty open cart for the customer.
func (r *Repository) Create(ctx context.Context, cart *models.CartRecord) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.Status == "" {
		cart.Status = enums.CartStatusOpen
	}
	return handle.Create(cart).Error
}

// FindItem looks up the line for a variant inside a cart.
func (r *Repository) FindItem(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var item models.CartItem
	err = handle.Where("cart_id = ? AND variant_id = ?", cartID, variantID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertItem adds a new line to the cart.
func (r *Repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return handle.Create(item).Error
}

// UpdateItemQty overwrites the quantity on an existing line.
func (r *Repository) UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	return handle.Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("qty", qty).Error
}

// RemoveItem deletes the line for a variant from the cart.
func (r *Repository) RemoveItem(ctx context.Context, cartID, variantID uuid.UUID) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	return handle.
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		Delete(&models.CartItem{}).Error
}

// SetCoupon stores the coupon code on an open cart. A nil code clears it.
func (r *Repository) SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	return handle.Model(&models.CartRecord{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusOpen).
		Update("coupon_code", code).Error
}

// MarkConverted flips an open cart to converted and drops its coupon. The
// status guard makes a second conversion attempt a no-op, which the boolean
// reports.
func (r *Repository) MarkConverted(ctx context.Context, cartID uuid.UUID) (bool, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}
	result := handle.Model(&models.CartRecord{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusOpen).
		Updates(map[string]any{
			"status":      enums.CartStatusConverted,
			"coupon_code": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
