package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/middleware"
	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	kycsvc "github.com/marketgrid/marketgrid-backend/internal/kyc"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/pagination"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

// KYCSubmit opens or reopens an identity review for the caller.
func KYCSubmit(svc kycsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenancy.FromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not identified"))
			return
		}

		subjectID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var payload submitKYCRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subjectType, err := enums.ParseKYCSubject(payload.SubjectType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subject type"))
			return
		}

		record, err := svc.Submit(r.Context(), kycsvc.SubmitInput{
			MarketplaceID: tenant.Marketplace.ID,
			SubjectID:     subjectID,
			SubjectType:   subjectType,
			LegalName:     payload.LegalName,
			DateOfBirth:   payload.DateOfBirth,
			Address:       payload.Address,
			Documents:     payload.Documents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newKYCResponse(record))
	}
}

// KYCSubmitMarketplace files the marketplace-level identity review that
// gates provisioning. It runs on the operator surface because the tenant
// database does not exist yet.
func KYCSubmitMarketplace(svc kycsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplaceID, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		var payload submitMarketplaceKYCRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Submit(r.Context(), kycsvc.SubmitInput{
			MarketplaceID: marketplaceID,
			SubjectID:     marketplaceID,
			SubjectType:   enums.KYCSubjectMarketplace,
			LegalName:     payload.LegalName,
			DateOfBirth:   payload.DateOfBirth,
			Address:       payload.Address,
			Documents:     payload.Documents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newKYCResponse(record))
	}
}

// KYCStatus returns the caller's current verification state.
func KYCStatus(svc kycsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenancy.FromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not identified"))
			return
		}

		subjectID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		subjectType := enums.KYCSubjectCustomer
		if raw := r.URL.Query().Get("subject_type"); raw != "" {
			parsed, parseErr := enums.ParseKYCSubject(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid subject type"))
				return
			}
			subjectType = parsed
		}

		status, err := svc.StatusFor(r.Context(), tenant.Marketplace.ID, subjectID, subjectType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": status.String()})
	}
}

// KYCListPending lists submissions awaiting review, oldest first.
func KYCListPending(svc kycsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplaceID, err := uuid.Parse(chi.URLParam(r, "marketplaceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace id"))
			return
		}

		limit := pagination.NormalizeLimit(queryInt(r, "limit"))
		records, err := svc.ListPending(r.Context(), marketplaceID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]kycResponse, 0, len(records))
		for i := range records {
			items = append(items, newKYCResponse(&records[i]))
		}
		responses.WriteSuccess(w, map[string]any{"records": items})
	}
}

// KYCDecide records an approve or reject verdict on a pending submission.
func KYCDecide(svc kycsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id"))
			return
		}

		reviewerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var payload decideKYCRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Decide(r.Context(), kycsvc.DecideInput{
			RecordID:   recordID,
			ReviewerID: reviewerID,
			Approve:    payload.Approve,
			Note:       payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKYCResponse(record))
	}
}

type submitKYCRequest struct {
	SubjectType string        `json:"subject_type" validate:"required"`
	LegalName   string        `json:"legal_name" validate:"required,min=2"`
	DateOfBirth *time.Time    `json:"date_of_birth"`
	Address     types.Address `json:"address" validate:"required"`
	Documents   types.JSONMap `json:"documents"`
}

type submitMarketplaceKYCRequest struct {
	LegalName   string        `json:"legal_name" validate:"required,min=2"`
	DateOfBirth *time.Time    `json:"date_of_birth"`
	Address     types.Address `json:"address" validate:"required"`
	Documents   types.JSONMap `json:"documents"`
}

type decideKYCRequest struct {
	Approve bool    `json:"approve"`
	Note    *string `json:"note"`
}

type kycResponse struct {
	ID          uuid.UUID  `json:"id"`
	SubjectID   uuid.UUID  `json:"subject_id"`
	SubjectType string     `json:"subject_type"`
	Status      string     `json:"status"`
	LegalName   string     `json:"legal_name"`
	ReviewNote  *string    `json:"review_note,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

func newKYCResponse(record *models.KYCRecord) kycResponse {
	return kycResponse{
		ID:          record.ID,
		SubjectID:   record.SubjectID,
		SubjectType: record.SubjectType.String(),
		Status:      record.Status.String(),
		LegalName:   record.LegalName,
		ReviewNote:  record.ReviewNote,
		SubmittedAt: record.SubmittedAt,
		DecidedAt:   record.DecidedAt,
	}
}
