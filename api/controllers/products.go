package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	productsvc "github.com/marketgrid/marketgrid-backend/internal/products"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/pagination"
)

// ProductCreate lists a new product for an approved vendor.
func ProductCreate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variants := make([]productsvc.VariantInput, 0, len(payload.Variants))
		for _, v := range payload.Variants {
			variants = append(variants, productsvc.VariantInput{
				SKU:              v.SKU,
				Name:             v.Name,
				PriceCents:       v.PriceCents,
				StockQty:         v.StockQty,
				BackorderAllowed: v.BackorderAllowed,
			})
		}

		product, err := svc.Create(r.Context(), productsvc.CreateInput{
			VendorID:    payload.VendorID,
			SKU:         payload.SKU,
			Title:       payload.Title,
			Description: payload.Description,
			PriceCents:  payload.PriceCents,
			Variants:    variants,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newProductResponse(product))
	}
}

func ProductGet(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		product, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

func ProductList(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := pagination.NormalizeLimit(queryInt(r, "limit"))
		products, err := svc.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]productResponse, 0, len(products))
		for i := range products {
			items = append(items, newProductResponse(&products[i]))
		}
		responses.WriteSuccess(w, map[string]any{"products": items})
	}
}

type createProductRequest struct {
	VendorID    uuid.UUID              `json:"vendor_id" validate:"required"`
	SKU         string                 `json:"sku" validate:"required"`
	Title       string                 `json:"title" validate:"required,min=2"`
	Description *string                `json:"description"`
	PriceCents  int64                  `json:"price_cents" validate:"required,min=1"`
	Variants    []createVariantRequest `json:"variants" validate:"dive"`
}

type createVariantRequest struct {
	SKU              string `json:"sku" validate:"required"`
	Name             string `json:"name" validate:"required"`
	PriceCents       *int64 `json:"price_cents"`
	StockQty         int    `json:"stock_qty" validate:"min=0"`
	BackorderAllowed bool   `json:"backorder_allowed"`
}

type productResponse struct {
	ID          uuid.UUID         `json:"id"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	PriceCents  int64             `json:"price_cents"`
	Currency    string            `json:"currency"`
	IsActive    bool              `json:"is_active"`
	Variants    []variantResponse `json:"variants"`
	CreatedAt   time.Time         `json:"created_at"`
}

type variantResponse struct {
	ID               uuid.UUID `json:"id"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	PriceCents       *int64    `json:"price_cents,omitempty"`
	StockQty         int       `json:"stock_qty"`
	BackorderAllowed bool      `json:"backorder_allowed"`
}

func newProductResponse(product *models.Product) productResponse {
	variants := make([]variantResponse, 0, len(product.Variants))
	for _, v := range product.Variants {
		variants = append(variants, variantResponse{
			ID:               v.ID,
			SKU:              v.SKU,
			Name:             v.Name,
			PriceCents:       v.PriceCents,
			StockQty:         v.StockQty,
			BackorderAllowed: v.BackorderAllowed,
		})
	}
	return productResponse{
		ID:          product.ID,
		VendorID:    product.VendorID,
		SKU:         product.SKU,
		Title:       product.Title,
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Currency:    product.Currency,
		IsActive:    product.IsActive,
		Variants:    variants,
		CreatedAt:   product.CreatedAt,
	}
}
