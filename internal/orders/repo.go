package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/repo"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// Repository persists orders in the tenant database resolved for the request.
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

// Create inserts an order and its item snapshots.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return handle.Create(order).Error
}

// FindByID loads an order with its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := handle.Preload("Items").Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByNumber loads an order by its customer-facing number.
func (r *Repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := handle.Preload("Items").Where("order_number = ?", number).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.Order
	err = handle.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaid settles an order exactly once. The payment_status guard in the
// WHERE clause means a replayed confirmation changes nothing, and the
// boolean reports whether this call was the one that settled it.
func (r *Repository) MarkPaid(ctx context.Context, orderID uuid.UUID, network, txHash *string, paidAt time.Time) (bool, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}
	result := handle.Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusPaid).
		Updates(map[string]any{
			"payment_status":  enums.PaymentStatusPaid,
			"status":          enums.OrderStatusPaid,
			"payment_network": network,
			"payment_tx_hash": txHash,
			"paid_at":         paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCanceled cancels an order that is still pending.
func (r *Repository) MarkCanceled(ctx context.Context, orderID uuid.UUID, canceledAt time.Time) (bool, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}
	result := handle.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": canceledAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	err = handle.Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Update("fulfillment_status", enums.FulfillmentStatusCanceled).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindStalePending returns pending, unpaid orders created before the cutoff,
// oldest first.
func (r *Repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	query := handle.Preload("Items").
		Where("status = ? AND payment_status = ? AND created_at < ?",
			enums.OrderStatusPending, enums.PaymentStatusUnpaid, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkExpired expires an order that is still pending.
func (r *Repository) MarkExpired(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}
	result := handle.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":      enums.OrderStatusExpired,
			"canceled_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	err = handle.Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Update("fulfillment_status", enums.FulfillmentStatusCanceled).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindItem loads one order line.
func (r *Repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return nil, err
	}
	var item models.OrderItem
	if err := handle.Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemFulfillment moves one line through the fulfillment states.
func (r *Repository) UpdateItemFulfillment(ctx context.Context, itemID uuid.UUID, status enums.FulfillmentStatus, at time.Time) error {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return err
	}
	updates := map[string]any{"fulfillment_status": status}
	switch status {
	case enums.FulfillmentStatusShipped:
		updates["shipped_at"] = at
	case enums.FulfillmentStatusDelivered:
		updates["delivered_at"] = at
	}
	return handle.Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

// MarkFulfilled closes out a paid order once every live line is delivered.
func (r *Repository) MarkFulfilled(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	handle, err := r.base.DB(ctx)
	if err != nil {
		return false, err
	}
	result := handle.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPaid).
		Updates(map[string]any{
			"status":       enums.OrderStatusFulfilled,
			"fulfilled_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
