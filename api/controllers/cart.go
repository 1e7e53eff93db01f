package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/middleware"
	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	cartsvc "github.com/marketgrid/marketgrid-backend/internal/cart"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
)

// CartFetch returns the caller's open cart, creating one on first use.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.Get(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.AddItem(r.Context(), customerID, payload.VariantID, payload.Qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(chi.URLParam(r, "variantID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		var payload cartQtyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.UpdateItem(r.Context(), customerID, variantID, payload.Qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(chi.URLParam(r, "variantID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		cart, err := svc.RemoveItem(r.Context(), customerID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

// CartApplyCoupon sets or clears the coupon code on the open cart.
func CartApplyCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.ApplyCoupon(r.Context(), customerID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return id, nil
}

type cartItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1,max=100"`
}

type cartQtyRequest struct {
	Qty int `json:"qty" validate:"min=0,max=100"`
}

type cartCouponRequest struct {
	Code string `json:"code" validate:"max=64"`
}

type cartResponse struct {
	ID         uuid.UUID          `json:"id"`
	Status     string             `json:"status"`
	CouponCode *string            `json:"coupon_code,omitempty"`
	Items      []cartItemResponse `json:"items"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

type cartItemResponse struct {
	VariantID uuid.UUID `json:"variant_id"`
	Qty       int       `json:"qty"`
}

func newCartResponse(cart *models.CartRecord) cartResponse {
	items := make([]cartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemResponse{VariantID: item.VariantID, Qty: item.Qty})
	}
	return cartResponse{
		ID:         cart.ID,
		Status:     cart.Status.String(),
		CouponCode: cart.CouponCode,
		Items:      items,
		UpdatedAt:  cart.UpdatedAt,
	}
}
