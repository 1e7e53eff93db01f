package tenancy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	dbpkg "github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox/payloads"
)

var slugRe = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// reservedSlugs can never become tenant keys; www is carved out of
// subdomain derivation entirely.
var reservedSlugs = map[string]bool{"www": true}

type serviceRepository interface {
	Create(ctx context.Context, marketplace *models.Marketplace) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Marketplace, error)
	FindBySlug(ctx context.Context, slug string) (*models.Marketplace, error)
	List(ctx context.Context, status *enums.MarketplaceStatus, limit int) ([]models.Marketplace, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MarketplaceStatus, failure *string) error
}

type provisionRunner interface {
	Provision(ctx context.Context, marketplace *models.Marketplace) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RegisterInput captures a new marketplace registration.
type RegisterInput struct {
	Name           string
	Slug           string
	OwnerEmail     string
	CommissionRate string
}

// Service exposes marketplace lifecycle operations for platform operators.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Marketplace, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Marketplace, error)
	List(ctx context.Context, status *enums.MarketplaceStatus, limit int) ([]models.Marketplace, error)
	Suspend(ctx context.Context, id uuid.UUID, reason string) error
	Resume(ctx context.Context, id uuid.UUID) error
	RetryProvisioning(ctx context.Context, id uuid.UUID) (*models.Marketplace, error)
}

type service struct {
	repo        serviceRepository
	provisioner provisionRunner
	registry    *Registry
	tx          txRunner
	events      outboxEmitter
	cfg         config.TenancyConfig
	logg        *logger.Logger
}

// NewService builds the marketplace service.
func NewService(
	repo serviceRepository,
	provisioner provisionRunner,
	registry *Registry,
	tx txRunner,
	events outboxEmitter,
	cfg config.TenancyConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if provisioner == nil {
		return nil, fmt.Errorf("provisioner required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:        repo,
		provisioner: provisioner,
		registry:    registry,
		tx:          tx,
		events:      events,
		cfg:         cfg,
		logg:        logg,
	}, nil
}

// Register creates the marketplace record in pending status. Provisioning
// does not run here; it is triggered when the marketplace's identity review
// is approved, or manually through RetryProvisioning.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Marketplace, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugRe.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid marketplace slug").
			WithDetails(map[string]string{"slug": slug})
	}
	if reservedSlugs[slug] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace slug is reserved").
			WithDetails(map[string]string{"slug": slug})
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace name is required")
	}
	if !strings.Contains(input.OwnerEmail, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid owner email")
	}

	commission := strings.TrimSpace(input.CommissionRate)
	if commission == "" {
		commission = "10.00"
	}

	marketplace := &models.Marketplace{
		Name:           strings.TrimSpace(input.Name),
		Slug:           slug,
		Domain:         fmt.Sprintf("%s.%s", slug, strings.ToLower(s.cfg.BaseDomain)),
		Status:         enums.MarketplaceStatusPending,
		OwnerEmail:     strings.TrimSpace(input.OwnerEmail),
		CommissionRate: commission,
	}

	if err := s.repo.Create(ctx, marketplace); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "marketplace slug already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create marketplace")
	}
	return marketplace, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Marketplace, error) {
	marketplace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace")
	}
	return marketplace, nil
}

func (s *service) List(ctx context.Context, status *enums.MarketplaceStatus, limit int) ([]models.Marketplace, error) {
	rows, err := s.repo.List(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list marketplaces")
	}
	return rows, nil
}

// Suspend blocks tenant traffic and evicts the cached pool.
func (s *service) Suspend(ctx context.Context, id uuid.UUID, reason string) error {
	marketplace, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if marketplace.Status == enums.MarketplaceStatusSuspended {
		return nil
	}
	if marketplace.Status != enums.MarketplaceStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only active marketplaces can be suspended")
	}

	if err := s.repo.UpdateStatus(ctx, id, enums.MarketplaceStatusSuspended, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suspend marketplace")
	}
	s.registry.Evict(id)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMarketplaceSuspended,
			AggregateType: enums.AggregateMarketplace,
			AggregateID:   id,
			Data: payloads.MarketplaceSuspendedEvent{
				MarketplaceID: id,
				Slug:          marketplace.Slug,
				Reason:        reason,
			},
		})
	})
}

// Resume reactivates a suspended marketplace.
func (s *service) Resume(ctx context.Context, id uuid.UUID) error {
	marketplace, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if marketplace.Status != enums.MarketplaceStatusSuspended {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only suspended marketplaces can be resumed")
	}
	if err := s.repo.UpdateStatus(ctx, id, enums.MarketplaceStatusActive, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume marketplace")
	}
	return nil
}

// RetryProvisioning runs the provisioning flow for a marketplace that is
// not yet active. Identity approval drives the first run; operators call it
// to replay a failed one. Already active marketplaces pass through.
func (s *service) RetryProvisioning(ctx context.Context, id uuid.UUID) (*models.Marketplace, error) {
	marketplace, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch marketplace.Status {
	case enums.MarketplaceStatusActive:
		return marketplace, nil
	case enums.MarketplaceStatusFailed, enums.MarketplaceStatusPending, enums.MarketplaceStatusProvisioning:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "marketplace cannot be provisioned").
			WithDetails(map[string]string{"status": marketplace.Status.String()})
	}

	if err := s.provisioner.Provision(ctx, marketplace); err != nil {
		return nil, err
	}

	provisioned, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload marketplace")
	}
	if err := s.emitProvisioned(ctx, provisioned); err != nil {
		return nil, err
	}
	return provisioned, nil
}

func (s *service) emitProvisioned(ctx context.Context, marketplace *models.Marketplace) error {
	driver := ""
	databaseName := ""
	if marketplace.Connection != nil {
		driver = marketplace.Connection.Driver
		databaseName = marketplace.Connection.DatabaseName
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMarketplaceProvisioned,
			AggregateType: enums.AggregateMarketplace,
			AggregateID:   marketplace.ID,
			Data: payloads.MarketplaceProvisionedEvent{
				MarketplaceID: marketplace.ID,
				Slug:          marketplace.Slug,
				Domain:        marketplace.Domain,
				Driver:        driver,
				DatabaseName:  databaseName,
			},
		})
	})
}
