package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

type vendorsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

type productsRepository interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, limit int) ([]models.Product, error)
}

// VariantInput describes one sellable unit on a new product.
type VariantInput struct {
	SKU              string
	Name             string
	PriceCents       *int64
	StockQty         int
	BackorderAllowed bool
}

// CreateInput describes a new product listing.
type CreateInput struct {
	VendorID    uuid.UUID
	SKU         string
	Title       string
	Description *string
	PriceCents  int64
	Variants    []VariantInput
}

// Service exposes product operations for a resolved tenant.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, limit int) ([]models.Product, error)
}

type service struct {
	repo    productsRepository
	vendors vendorsRepository
}

// NewService builds the product service.
func NewService(repo productsRepository, vendors vendorsRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	return &service{repo: repo, vendors: vendors}, nil
}

// Create lists a product for a vendor. Vendors without an approved identity
// check cannot list.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product title is required")
	}
	if strings.TrimSpace(input.SKU) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if len(input.Variants) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one variant is required")
	}

	vendor, err := s.vendors.FindByID(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	if !vendor.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor is deactivated")
	}
	if vendor.KYCStatus != enums.KYCStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor identity verification is not approved").
			WithDetails(map[string]string{"kyc_status": vendor.KYCStatus.String()})
	}

	product := &models.Product{
		VendorID:    input.VendorID,
		SKU:         strings.TrimSpace(input.SKU),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		PriceCents:  input.PriceCents,
		Currency:    "USD",
		IsActive:    true,
	}
	for _, v := range input.Variants {
		if strings.TrimSpace(v.SKU) == "" || strings.TrimSpace(v.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant sku and name are required")
		}
		if v.StockQty < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant stock must not be negative")
		}
		if v.PriceCents != nil && *v.PriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant price must not be negative")
		}
		product.Variants = append(product.Variants, models.ProductVariant{
			SKU:              strings.TrimSpace(v.SKU),
			Name:             strings.TrimSpace(v.Name),
			PriceCents:       v.PriceCents,
			StockQty:         v.StockQty,
			BackorderAllowed: v.BackorderAllowed,
		})
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, limit int) ([]models.Product, error) {
	rows, err := s.repo.ListActive(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return rows, nil
}
