package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	ordersvc "github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/pagination"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

// OrderList returns the caller's orders, newest first.
func OrderList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit := pagination.NormalizeLimit(queryInt(r, "limit"))
		orders, err := svc.ListByCustomer(r.Context(), customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, 0, len(orders))
		for i := range orders {
			items = append(items, newOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, map[string]any{"orders": items})
	}
}

func OrderDetail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := loadOwnedOrder(r, svc, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderConfirmPayment settles a blockchain order. Replays return the order
// unchanged.
func OrderConfirmPayment(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := loadOwnedOrder(r, svc, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmed, err := svc.ConfirmPayment(r.Context(), ordersvc.ConfirmPaymentInput{
			OrderID: order.ID,
			Network: payload.Network,
			TxHash:  payload.TxHash,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(confirmed))
	}
}

func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := loadOwnedOrder(r, svc, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		canceled, err := svc.Cancel(r.Context(), order.ID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(canceled))
	}
}

// OrderShipItem and OrderDeliverItem advance one line's fulfillment.
func OrderShipItem(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return moveOrderItem(svc.ShipItem, logg)
}

func OrderDeliverItem(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return moveOrderItem(svc.DeliverItem, logg)
}

func moveOrderItem(move func(ctx context.Context, itemID uuid.UUID) (*models.Order, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		order, err := move(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func loadOwnedOrder(r *http.Request, svc ordersvc.Service, customerID uuid.UUID) (*models.Order, error) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}

	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

type confirmPaymentRequest struct {
	Network string `json:"network"`
	TxHash  string `json:"tx_hash" validate:"required"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentNetwork  *string             `json:"payment_network,omitempty"`
	PaymentTxHash   *string             `json:"payment_tx_hash,omitempty"`
	CryptoAmount    *string             `json:"crypto_amount,omitempty"`
	SubtotalCents   int64               `json:"subtotal_cents"`
	DiscountCents   int64               `json:"discount_cents"`
	TaxCents        int64               `json:"tax_cents"`
	CommissionCents int64               `json:"commission_cents"`
	TotalCents      int64               `json:"total_cents"`
	ShippingAddress types.Address       `json:"shipping_address"`
	Items           []orderItemResponse `json:"items"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CanceledAt      *time.Time          `json:"canceled_at,omitempty"`
	FulfilledAt     *time.Time          `json:"fulfilled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ID                uuid.UUID  `json:"id"`
	VendorID          uuid.UUID  `json:"vendor_id"`
	ProductID         uuid.UUID  `json:"product_id"`
	VariantID         uuid.UUID  `json:"variant_id"`
	Title             string     `json:"title"`
	SKU               string     `json:"sku"`
	UnitPriceCents    int64      `json:"unit_price_cents"`
	Qty               int        `json:"qty"`
	LineTotalCents    int64      `json:"line_total_cents"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:                item.ID,
			VendorID:          item.VendorID,
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			Title:             item.Title,
			SKU:               item.SKU,
			UnitPriceCents:    item.UnitPriceCents,
			Qty:               item.Qty,
			LineTotalCents:    item.LineTotalCents,
			FulfillmentStatus: item.FulfillmentStatus.String(),
			ShippedAt:         item.ShippedAt,
			DeliveredAt:       item.DeliveredAt,
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status.String(),
		PaymentStatus:   order.PaymentStatus.String(),
		PaymentMethod:   order.PaymentMethod.String(),
		PaymentNetwork:  order.PaymentNetwork,
		PaymentTxHash:   order.PaymentTxHash,
		CryptoAmount:    order.CryptoAmount,
		SubtotalCents:   order.SubtotalCents,
		DiscountCents:   order.DiscountCents,
		TaxCents:        order.TaxCents,
		CommissionCents: order.CommissionCents,
		TotalCents:      order.TotalCents,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		PaidAt:          order.PaidAt,
		CanceledAt:      order.CanceledAt,
		FulfilledAt:     order.FulfilledAt,
		CreatedAt:       order.CreatedAt,
	}
}
