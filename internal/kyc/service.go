package kyc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox/payloads"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

type kycRepository interface {
	Create(ctx context.Context, record *models.KYCRecord) error
	Save(ctx context.Context, record *models.KYCRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.KYCRecord, error)
	FindBySubject(ctx context.Context, marketplaceID, subjectID uuid.UUID, subjectType enums.KYCSubject) (*models.KYCRecord, error)
	ListPending(ctx context.Context, marketplaceID uuid.UUID, limit int) ([]models.KYCRecord, error)
	WithTx(tx *gorm.DB) *Repository
}

type marketplaceFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Marketplace, error)
}

type marketplaceProvisioner interface {
	RetryProvisioning(ctx context.Context, id uuid.UUID) (*models.Marketplace, error)
}

type poolRegistry interface {
	Handle(ctx context.Context, marketplace *models.Marketplace) (*db.Client, error)
}

type vendorSyncer interface {
	UpdateKYC(ctx context.Context, id uuid.UUID, status enums.KYCStatus, recordID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SubmitInput is an identity verification submission.
type SubmitInput struct {
	MarketplaceID uuid.UUID
	SubjectID     uuid.UUID
	SubjectType   enums.KYCSubject
	LegalName     string
	DateOfBirth   *time.Time
	Address       types.Address
	Documents     types.JSONMap
}

// DecideInput records a reviewer's verdict on a pending submission.
type DecideInput struct {
	RecordID   uuid.UUID
	ReviewerID uuid.UUID
	Approve    bool
	Note       *string
}

// Service reviews identity submissions on the platform database and keeps
// the tenant's vendor rows in step with the decisions.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.KYCRecord, error)
	Decide(ctx context.Context, input DecideInput) (*models.KYCRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.KYCRecord, error)
	StatusFor(ctx context.Context, marketplaceID, subjectID uuid.UUID, subjectType enums.KYCSubject) (enums.KYCStatus, error)
	ListPending(ctx context.Context, marketplaceID uuid.UUID, limit int) ([]models.KYCRecord, error)
}

type service struct {
	repo         kycRepository
	marketplaces marketplaceFinder
	provisioner  marketplaceProvisioner
	pools        poolRegistry
	vendors      vendorSyncer
	tx           txRunner
	events       outboxEmitter
	logg         *logger.Logger
}

// NewService builds the KYC review service.
func NewService(
	repo kycRepository,
	marketplaces marketplaceFinder,
	provisioner marketplaceProvisioner,
	pools poolRegistry,
	vendors vendorSyncer,
	tx txRunner,
	events outboxEmitter,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("kyc repository required")
	}
	if marketplaces == nil {
		return nil, fmt.Errorf("marketplace finder required")
	}
	if provisioner == nil {
		return nil, fmt.Errorf("marketplace provisioner required")
	}
	if pools == nil {
		return nil, fmt.Errorf("pool registry required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendor syncer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:         repo,
		marketplaces: marketplaces,
		provisioner:  provisioner,
		pools:        pools,
		vendors:      vendors,
		tx:           tx,
		events:       events,
		logg:         logg,
	}, nil
}

// Submit opens or reopens a verification for a subject. A submission is
// only accepted when nothing is pending or already approved.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.KYCRecord, error) {
	if input.MarketplaceID == uuid.Nil || input.SubjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace and subject ids are required")
	}
	if !input.SubjectType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown subject type")
	}
	if strings.TrimSpace(input.LegalName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "legal name is required")
	}
	if err := input.Address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address")
	}

	marketplace, err := s.marketplaces.FindByID(ctx, input.MarketplaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace")
	}

	record, err := s.repo.FindBySubject(ctx, input.MarketplaceID, input.SubjectID, input.SubjectType)
	switch {
	case err == nil:
		switch record.Status {
		case enums.KYCStatusPending:
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a submission is already under review")
		case enums.KYCStatusApproved:
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "identity is already approved")
		case enums.KYCStatusRejected:
			if input.SubjectType == enums.KYCSubjectVendor {
				// A rejected vendor submission stays on file; the
				// resubmission is a fresh record.
				record = &models.KYCRecord{
					MarketplaceID:   input.MarketplaceID,
					SubjectID:       input.SubjectID,
					SubjectType:     input.SubjectType,
					SubmissionCount: record.SubmissionCount + 1,
					IsResubmission:  true,
				}
			} else {
				record.SubmissionCount++
				record.IsResubmission = true
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = &models.KYCRecord{
			MarketplaceID:   input.MarketplaceID,
			SubjectID:       input.SubjectID,
			SubjectType:     input.SubjectType,
			SubmissionCount: 1,
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kyc record")
	}

	now := time.Now().UTC()
	record.Status = enums.KYCStatusPending
	record.LegalName = strings.TrimSpace(input.LegalName)
	record.DateOfBirth = input.DateOfBirth
	record.Address = input.Address.Normalized()
	record.Documents = input.Documents
	record.ReviewerID = nil
	record.ReviewNote = nil
	record.SubmittedAt = &now
	record.DecidedAt = nil

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if record.ID == uuid.Nil {
			if err := repo.Create(ctx, record); err != nil {
				return err
			}
		} else if err := repo.Save(ctx, record); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventKYCSubmitted,
			AggregateType: enums.AggregateKYCRecord,
			AggregateID:   record.ID,
			Tenant:        marketplace.Slug,
			Data: payloads.KYCSubmittedEvent{
				RecordID:      record.ID,
				MarketplaceID: record.MarketplaceID,
				SubjectID:     record.SubjectID,
				SubjectType:   record.SubjectType,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist kyc submission")
	}

	if record.SubjectType == enums.KYCSubjectVendor {
		if err := s.syncVendor(ctx, marketplace, record); err != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to sync vendor kyc status", err)
		}
	}
	return record, nil
}

// Decide closes a pending submission. Decisions on any other status are
// rejected so a replayed review cannot overwrite a newer submission.
// Approving a marketplace submission provisions the tenant database before
// the verdict is recorded.
func (s *service) Decide(ctx context.Context, input DecideInput) (*models.KYCRecord, error) {
	if input.RecordID == uuid.Nil || input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record and reviewer ids are required")
	}

	record, err := s.repo.FindByID(ctx, input.RecordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "kyc record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kyc record")
	}
	if record.Status != enums.KYCStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "submission is not pending review").
			WithDetails(map[string]string{"status": record.Status.String()})
	}

	marketplace, err := s.marketplaces.FindByID(ctx, record.MarketplaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace")
	}

	if record.SubjectType == enums.KYCSubjectMarketplace && input.Approve {
		// Approval is what activates the tenant. Provision before recording
		// the verdict so a failed run leaves the submission open for another
		// attempt and the error reaches the reviewer.
		if _, err := s.provisioner.RetryProvisioning(ctx, record.MarketplaceID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if input.Approve {
		record.Status = enums.KYCStatusApproved
	} else {
		record.Status = enums.KYCStatusRejected
	}
	record.ReviewerID = &input.ReviewerID
	record.ReviewNote = input.Note
	record.DecidedAt = &now

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, record); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventKYCDecided,
			AggregateType: enums.AggregateKYCRecord,
			AggregateID:   record.ID,
			Tenant:        marketplace.Slug,
			Data: payloads.KYCDecidedEvent{
				RecordID:      record.ID,
				MarketplaceID: record.MarketplaceID,
				SubjectID:     record.SubjectID,
				Status:        record.Status,
				DecidedAt:     now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist kyc decision")
	}

	if record.SubjectType == enums.KYCSubjectVendor {
		if err := s.syncVendor(ctx, marketplace, record); err != nil {
			// The decision is committed. Surface the sync failure so the
			// operator can replay it, but keep the record in the response.
			return record, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync vendor kyc status")
		}
	}
	return record, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.KYCRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "kyc record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kyc record")
	}
	return record, nil
}

// StatusFor reports the subject's verification status. A subject with no
// submission reads as unsubmitted.
func (s *service) StatusFor(ctx context.Context, marketplaceID, subjectID uuid.UUID, subjectType enums.KYCSubject) (enums.KYCStatus, error) {
	record, err := s.repo.FindBySubject(ctx, marketplaceID, subjectID, subjectType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return enums.KYCStatusUnsubmitted, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kyc record")
	}
	return record.Status, nil
}

func (s *service) ListPending(ctx context.Context, marketplaceID uuid.UUID, limit int) ([]models.KYCRecord, error) {
	records, err := s.repo.ListPending(ctx, marketplaceID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending kyc records")
	}
	return records, nil
}

// syncVendor pushes the record's status onto the vendor row inside the
// tenant database the registry resolves for the marketplace.
func (s *service) syncVendor(ctx context.Context, marketplace *models.Marketplace, record *models.KYCRecord) error {
	client, err := s.pools.Handle(ctx, marketplace)
	if err != nil {
		return err
	}
	tenantCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: *marketplace, DB: client.DB()})
	return s.vendors.UpdateKYC(tenantCtx, record.SubjectID, record.Status, record.ID)
}
