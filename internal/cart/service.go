package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

const maxLineQty = 100

type cartRepository interface {
	FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error)
	Create(ctx context.Context, cart *models.CartRecord) error
	FindItem(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, cartID, variantID uuid.UUID) error
	SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
}

type variantFinder interface {
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, *models.Product, error)
}

// Service exposes cart operations for the storefront.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error)
	AddItem(ctx context.Context, customerID, variantID uuid.UUID, qty int) (*models.CartRecord, error)
	UpdateItem(ctx context.Context, customerID, variantID uuid.UUID, qty int) (*models.CartRecord, error)
	RemoveItem(ctx context.Context, customerID, variantID uuid.UUID) (*models.CartRecord, error)
	ApplyCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.CartRecord, error)
}

type service struct {
	repo     cartRepository
	variants variantFinder
}

// NewService builds the cart service.
func NewService(repo cartRepository, variants variantFinder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant finder required")
	}
	return &service{repo: repo, variants: variants}, nil
}

// Get returns the customer's open cart, creating one on first use.
func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	cart, err := s.repo.FindOpenByCustomer(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	cart = &models.CartRecord{CustomerID: customerID}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

// AddItem puts qty units of a variant into the cart, merging with an
// existing line for the same variant.
func (s *service) AddItem(ctx context.Context, customerID, variantID uuid.UUID, qty int) (*models.CartRecord, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if qty > maxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per line limit")
	}

	variant, product, err := s.variants.FindVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant.DeletedAt != nil || !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "variant is no longer available")
	}

	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindItem(ctx, cart.ID, variantID)
	switch {
	case err == nil:
		next := existing.Qty + qty
		if next > maxLineQty {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per line limit")
		}
		if err := s.repo.UpdateItemQty(ctx, existing.ID, next); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item := &models.CartItem{CartID: cart.ID, VariantID: variantID, Qty: qty}
		if err := s.repo.InsertItem(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cart item")
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	return s.reload(ctx, customerID)
}

// UpdateItem overwrites a line quantity. Zero removes the line.
func (s *service) UpdateItem(ctx context.Context, customerID, variantID uuid.UUID, qty int) (*models.CartRecord, error) {
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if qty > maxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per line limit")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, customerID, variantID)
	}

	cart, err := s.openCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindItem(ctx, cart.ID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant is not in the cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if err := s.repo.UpdateItemQty(ctx, existing.ID, qty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.reload(ctx, customerID)
}

// RemoveItem drops a variant from the cart. Removing a variant that is
// not present succeeds quietly.
func (s *service) RemoveItem(ctx context.Context, customerID, variantID uuid.UUID) (*models.CartRecord, error) {
	cart, err := s.openCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveItem(ctx, cart.ID, variantID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.reload(ctx, customerID)
}

// ApplyCoupon attaches a coupon code to the open cart. An empty code
// removes the current one. Validation of the code itself happens at
// checkout, where the pricing is computed.
func (s *service) ApplyCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.CartRecord, error) {
	cart, err := s.openCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(code)
	var value *string
	if trimmed != "" {
		if len(trimmed) > 64 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code too long")
		}
		value = &trimmed
	}
	if err := s.repo.SetCoupon(ctx, cart.ID, value); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply coupon")
	}
	return s.reload(ctx, customerID)
}

func (s *service) openCart(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	cart, err := s.repo.FindOpenByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *service) reload(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	cart, err := s.repo.FindOpenByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}
