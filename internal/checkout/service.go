package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/metrics"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox/payloads"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

type cartRepository interface {
	FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error)
	MarkConverted(ctx context.Context, cartID uuid.UUID) (bool, error)
}

type stockRepository interface {
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, *models.Product, error)
	DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	StockRemaining(ctx context.Context, variantID uuid.UUID) (int, error)
}

type orderWriter interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type networkFinder interface {
	FindEnabledByName(ctx context.Context, name string) (*models.PaymentNetwork, error)
}

type vendorFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PlaceOrderInput converts a customer's open cart into an order.
type PlaceOrderInput struct {
	CustomerID      uuid.UUID
	PaymentMethod   enums.PaymentMethod
	Network         string
	ShippingAddress types.Address
}

// Service turns carts into orders. Stock is claimed line by line with
// conditional decrements inside one transaction, so two checkouts racing
// for the last unit cannot both win.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
}

type service struct {
	carts    cartRepository
	stock    stockRepository
	orders   orderWriter
	networks networkFinder
	vendors  vendorFinder
	events   outboxEmitter
	metrics  *metrics.CheckoutMetrics
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	carts cartRepository,
	stock stockRepository,
	ordersRepo orderWriter,
	networks networkFinder,
	vendors vendorFinder,
	events outboxEmitter,
	checkoutMetrics *metrics.CheckoutMetrics,
	cfg config.PaymentsConfig,
	logg *logger.Logger,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if networks == nil {
		return nil, fmt.Errorf("network finder required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendor finder required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		carts:    carts,
		stock:    stock,
		orders:   ordersRepo,
		networks: networks,
		vendors:  vendors,
		events:   events,
		metrics:  checkoutMetrics,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

// PlaceOrder freezes prices and each vendor's commission rate, claims
// stock, and commits the order, the cart conversion, and the outbox events
// in one tenant transaction.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	started := time.Now()
	order, err := s.placeOrder(ctx, input)
	if err != nil {
		s.metrics.IncRejected(rejectionReason(err))
		return nil, err
	}
	s.metrics.ObserveDuration(input.PaymentMethod.String(), time.Since(started))
	s.metrics.IncPlaced(input.PaymentMethod.String())
	return order, nil
}

func (s *service) placeOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	input.ShippingAddress = input.ShippingAddress.Normalized()

	tenant, ok := tenancy.FromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no tenant database in request context")
	}
	marketplaceRate, err := decimal.NewFromString(tenant.Marketplace.CommissionRate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "invalid commission rate")
	}

	var network *models.PaymentNetwork
	if input.PaymentMethod == enums.PaymentMethodBlockchain {
		name := strings.TrimSpace(input.Network)
		if name == "" {
			name = s.cfg.DefaultNetwork
		}
		network, err = s.networks.FindEnabledByName(ctx, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment network is not configured").
					WithDetails(map[string]string{"network": name})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment network")
		}
		if strings.TrimSpace(network.ReceiverAddress) == "" {
			// An enabled network without a merchant wallet is an operator
			// mistake; accepting payment toward nowhere is never an option.
			return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "payment network has no merchant wallet").
				WithDetails(map[string]string{"network": network.Name})
		}
	}

	cart, err := s.carts.FindOpenByCustomer(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	number, err := orders.NewOrderNumber(s.cfg.OrderPrefix, time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	var placed *models.Order
	err = db.RunInTx(tenant.DB, func(tx *gorm.DB) error {
		txCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: tenant.Marketplace, DB: tx})

		order := &models.Order{
			OrderNumber:    number,
			CustomerID:     input.CustomerID,
			CartID:         &cart.ID,
			Status:         enums.OrderStatusPending,
			PaymentStatus:  enums.PaymentStatusUnpaid,
			PaymentMethod:  input.PaymentMethod,
			CommissionRate: tenant.Marketplace.CommissionRate,
			ShippingAddress: input.ShippingAddress,
		}

		vendors := map[uuid.UUID]bool{}
		vendorRates := map[uuid.UUID]decimal.Decimal{}
		for _, line := range cart.Items {
			variant, product, err := s.stock.FindVariant(txCtx, line.VariantID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "a cart item is no longer available")
				}
				return err
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a cart item is no longer available").
					WithDetails(map[string]string{"sku": variant.SKU})
			}

			claimed, err := s.stock.DecrementStock(txCtx, variant.ID, line.Qty)
			if err != nil {
				return err
			}
			if !claimed {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
					WithDetails(map[string]string{"sku": variant.SKU})
			}
			remaining, err := s.stock.StockRemaining(txCtx, variant.ID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				s.metrics.IncStockDepleted()
				if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventStockDepleted,
					AggregateType: enums.AggregateProduct,
					AggregateID:   product.ID,
					Tenant:        tenant.Marketplace.Slug,
					Data: payloads.StockDepletedEvent{
						VariantID: variant.ID,
						ProductID: product.ID,
						SKU:       variant.SKU,
					},
				}); err != nil {
					return err
				}
			}

			rate, ok := vendorRates[product.VendorID]
			if !ok {
				resolved, rateErr := s.vendorRate(txCtx, product.VendorID, marketplaceRate)
				if rateErr != nil {
					return rateErr
				}
				rate = resolved
				vendorRates[product.VendorID] = rate
			}

			unitPrice := variant.EffectivePriceCents(*product)
			lineSubtotal := unitPrice * int64(line.Qty)
			// discount and tax are always zero today; the formula stays general
			var lineDiscount, lineTax int64
			lineTotal := lineSubtotal - lineDiscount + lineTax
			lineCommission := commissionCents(lineTotal, rate)
			order.Items = append(order.Items, models.OrderItem{
				VendorID:          product.VendorID,
				ProductID:         product.ID,
				VariantID:         variant.ID,
				Title:             product.Title,
				SKU:               variant.SKU,
				UnitPriceCents:    unitPrice,
				Qty:               line.Qty,
				DiscountCents:     lineDiscount,
				TaxCents:          lineTax,
				LineTotalCents:    lineTotal,
				CommissionRate:    rate.StringFixed(2),
				CommissionCents:   lineCommission,
				VendorPayoutCents: lineTotal - lineCommission,
				FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
			})
			order.SubtotalCents += lineSubtotal
			order.DiscountCents += lineDiscount
			order.TaxCents += lineTax
			order.CommissionCents += lineCommission
			vendors[product.VendorID] = true
		}

		order.TotalCents = order.SubtotalCents - order.DiscountCents + order.TaxCents
		order.PayoutCents = order.TotalCents - order.CommissionCents
		if network != nil {
			name := network.Name
			order.PaymentNetwork = &name
			amount, err := cryptoAmount(order.TotalCents, network.USDRate, s.cfg.USDRateFallback)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "invalid network rate")
			}
			order.CryptoAmount = &amount
		}

		converted, err := s.carts.MarkConverted(txCtx, cart.ID)
		if err != nil {
			return err
		}
		if !converted {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart was already checked out")
		}

		if err := s.orders.Create(txCtx, order); err != nil {
			return err
		}

		vendorIDs := make([]uuid.UUID, 0, len(vendors))
		for id := range vendors {
			vendorIDs = append(vendorIDs, id)
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Tenant:        tenant.Marketplace.Slug,
			Data: payloads.OrderPlacedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				TotalCents:    order.TotalCents,
				PaymentMethod: order.PaymentMethod,
				VendorIDs:     vendorIDs,
			},
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartConverted,
			AggregateType: enums.AggregateCart,
			AggregateID:   cart.ID,
			Tenant:        tenant.Marketplace.Slug,
			Data:          payloads.CartConvertedEvent{CartID: cart.ID, OrderID: order.ID},
		}); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place order")
	}
	return s.orders.FindByID(ctx, placed.ID)
}

// vendorRate resolves the fulfilling vendor's commission rate, falling back
// to the marketplace rate when the vendor carries no override.
func (s *service) vendorRate(ctx context.Context, vendorID uuid.UUID, marketplaceRate decimal.Decimal) (decimal.Decimal, error) {
	vendor, err := s.vendors.FindByID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return marketplaceRate, nil
		}
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	if vendor.CommissionRate == nil {
		return marketplaceRate, nil
	}
	rate, err := decimal.NewFromString(*vendor.CommissionRate)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "invalid vendor commission rate")
	}
	return rate, nil
}

// commissionCents applies a commission rate to a cent amount, rounding
// half up to whole cents.
func commissionCents(totalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(totalCents).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// cryptoAmount converts a cent total into the network currency using its
// USD rate, quoted to eight decimal places. A missing or non-positive rate
// falls back to the configured constant.
func cryptoAmount(totalCents int64, usdRate, fallbackRate string) (string, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(usdRate))
	if err != nil || !rate.IsPositive() {
		rate, err = decimal.NewFromString(strings.TrimSpace(fallbackRate))
		if err != nil {
			return "", fmt.Errorf("fallback usd rate %q: %w", fallbackRate, err)
		}
		if !rate.IsPositive() {
			return "", fmt.Errorf("fallback usd rate %q is not positive", fallbackRate)
		}
	}
	usd := decimal.NewFromInt(totalCents).Div(decimal.NewFromInt(100))
	return usd.DivRound(rate, 8).StringFixed(8), nil
}

func rejectionReason(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation:
		return "validation"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeConflict:
		return "cart_converted"
	case pkgerrors.CodeStateConflict:
		return "insufficient_stock"
	case pkgerrors.CodeConfiguration:
		return "misconfigured_network"
	default:
		return "internal"
	}
}
