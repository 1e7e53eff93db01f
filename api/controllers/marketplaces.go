package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/pagination"
)

// MarketplaceRegister accepts a new marketplace. The row starts in pending
// status; its database is provisioned when the identity review is approved.
func MarketplaceRegister(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "marketplace service unavailable"))
			return
		}

		var payload registerMarketplaceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		marketplace, err := svc.Register(r.Context(), tenancy.RegisterInput{
			Name:           payload.Name,
			Slug:           payload.Slug,
			OwnerEmail:     payload.OwnerEmail,
			CommissionRate: payload.CommissionRate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newMarketplaceResponse(marketplace))
	}
}

func MarketplaceGet(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		marketplace, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMarketplaceResponse(marketplace))
	}
}

func MarketplaceList(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *enums.MarketplaceStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := enums.ParseMarketplaceStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		limit := pagination.NormalizeLimit(queryInt(r, "limit"))
		marketplaces, err := svc.List(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]marketplaceResponse, 0, len(marketplaces))
		for i := range marketplaces {
			items = append(items, newMarketplaceResponse(&marketplaces[i]))
		}
		responses.WriteSuccess(w, map[string]any{"marketplaces": items})
	}
}

func MarketplaceSuspend(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		var payload suspendMarketplaceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Suspend(r.Context(), id, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "suspended"})
	}
}

func MarketplaceResume(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		if err := svc.Resume(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}

func MarketplaceRetryProvisioning(svc tenancy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		marketplace, err := svc.RetryProvisioning(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMarketplaceResponse(marketplace))
	}
}

type registerMarketplaceRequest struct {
	Name           string `json:"name" validate:"required,min=2"`
	Slug           string `json:"slug" validate:"required,min=2"`
	OwnerEmail     string `json:"owner_email" validate:"required,email"`
	CommissionRate string `json:"commission_rate" validate:"required"`
}

type suspendMarketplaceRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type marketplaceResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Domain         string     `json:"domain"`
	Status         string     `json:"status"`
	OwnerEmail     string     `json:"owner_email"`
	CommissionRate string     `json:"commission_rate"`
	ProvisionedAt  *time.Time `json:"provisioned_at,omitempty"`
	SuspendedAt    *time.Time `json:"suspended_at,omitempty"`
	LastFailure    *string    `json:"last_failure,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newMarketplaceResponse(m *models.Marketplace) marketplaceResponse {
	return marketplaceResponse{
		ID:             m.ID,
		Name:           m.Name,
		Slug:           m.Slug,
		Domain:         m.Domain,
		Status:         m.Status.String(),
		OwnerEmail:     m.OwnerEmail,
		CommissionRate: m.CommissionRate,
		ProvisionedAt:  m.ProvisionedAt,
		SuspendedAt:    m.SuspendedAt,
		LastFailure:    m.LastFailure,
		CreatedAt:      m.CreatedAt,
	}
}
