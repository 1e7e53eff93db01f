package products

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

type stubVendors struct {
	vendor *models.Vendor
	err    error
}

func (s *stubVendors) FindByID(_ context.Context, _ uuid.UUID) (*models.Vendor, error) {
	return s.vendor, s.err
}

type stubProducts struct {
	createErr error
	created   *models.Product
}

func (s *stubProducts) Create(_ context.Context, product *models.Product) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = product
	return nil
}

func (s *stubProducts) FindByID(_ context.Context, _ uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProducts) ListActive(_ context.Context, _ int) ([]models.Product, error) {
	return nil, nil
}

func approvedVendor() *models.Vendor {
	return &models.Vendor{
		ID:        uuid.New(),
		KYCStatus: enums.KYCStatusApproved,
		IsActive:  true,
	}
}

func validInput(vendorID uuid.UUID) CreateInput {
	return CreateInput{
		VendorID:   vendorID,
		SKU:        "HAT-001",
		Title:      "Bucket Hat",
		PriceCents: 1800,
		Variants: []VariantInput{
			{SKU: "HAT-001-OS", Name: "One Size", StockQty: 12},
		},
	}
}

func TestCreateProduct(t *testing.T) {
	t.Parallel()
	vendor := approvedVendor()
	repo := &stubProducts{}
	svc, err := NewService(repo, &stubVendors{vendor: vendor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	product, err := svc.Create(context.Background(), validInput(vendor.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Currency != "USD" {
		t.Fatalf("expected USD default, got %s", product.Currency)
	}
	if !product.IsActive {
		t.Fatal("new product should be active")
	}
	if len(product.Variants) != 1 || product.Variants[0].SKU != "HAT-001-OS" {
		t.Fatalf("unexpected variants: %+v", product.Variants)
	}
}

func TestCreateProductRequiresApprovedVendor(t *testing.T) {
	t.Parallel()
	for _, status := range []enums.KYCStatus{enums.KYCStatusUnsubmitted, enums.KYCStatusPending, enums.KYCStatusRejected} {
		vendor := approvedVendor()
		vendor.KYCStatus = status
		svc, err := NewService(&stubProducts{}, &stubVendors{vendor: vendor})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = svc.Create(context.Background(), validInput(vendor.ID))
		if pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
			t.Fatalf("status %s: expected forbidden, got %v", status, err)
		}
	}
}

func TestCreateProductRejectsDeactivatedVendor(t *testing.T) {
	t.Parallel()
	vendor := approvedVendor()
	vendor.IsActive = false
	svc, err := NewService(&stubProducts{}, &stubVendors{vendor: vendor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Create(context.Background(), validInput(vendor.ID))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateProductValidation(t *testing.T) {
	t.Parallel()
	vendor := approvedVendor()
	svc, err := NewService(&stubProducts{}, &stubVendors{vendor: vendor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]func(*CreateInput){
		"missing title":    func(in *CreateInput) { in.Title = " " },
		"missing sku":      func(in *CreateInput) { in.SKU = "" },
		"negative price":   func(in *CreateInput) { in.PriceCents = -1 },
		"no variants":      func(in *CreateInput) { in.Variants = nil },
		"variant no sku":   func(in *CreateInput) { in.Variants[0].SKU = "" },
		"negative stock":   func(in *CreateInput) { in.Variants[0].StockQty = -1 },
	}
	for name, mutate := range cases {
		input := validInput(vendor.ID)
		mutate(&input)
		if _, err := svc.Create(context.Background(), input); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	t.Parallel()
	vendor := approvedVendor()
	repo := &stubProducts{createErr: errors.New("UNIQUE constraint failed: products.sku")}
	svc, err := NewService(repo, &stubVendors{vendor: vendor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Create(context.Background(), validInput(vendor.ID))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateProductVendorNotFound(t *testing.T) {
	t.Parallel()
	svc, err := NewService(&stubProducts{}, &stubVendors{err: gorm.ErrRecordNotFound})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Create(context.Background(), validInput(uuid.New()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()
	svc, err := NewService(&stubProducts{}, &stubVendors{vendor: approvedVendor()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Get(context.Background(), uuid.New()); pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
