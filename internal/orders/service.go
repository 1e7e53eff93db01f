package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox/payloads"
)

type ordersRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, network, txHash *string, paidAt time.Time) (bool, error)
	MarkCanceled(ctx context.Context, orderID uuid.UUID, canceledAt time.Time) (bool, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	UpdateItemFulfillment(ctx context.Context, itemID uuid.UUID, status enums.FulfillmentStatus, at time.Time) error
	MarkFulfilled(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
}

type stockRestorer interface {
	RestoreStock(ctx context.Context, variantID uuid.UUID, qty int) error
}

type networkFinder interface {
	FindEnabledByName(ctx context.Context, name string) (*models.PaymentNetwork, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ConfirmPaymentInput settles an order against a received payment.
type ConfirmPaymentInput struct {
	OrderID uuid.UUID
	Network string
	TxHash  string
}

// Service exposes order lifecycle operations after checkout.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	ShipItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error)
	DeliverItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo     ordersRepository
	stock    stockRestorer
	networks networkFinder
	events   outboxEmitter
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

// NewService builds the order service.
func NewService(
	repo ordersRepository,
	stock stockRestorer,
	networks networkFinder,
	events outboxEmitter,
	cfg config.PaymentsConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if networks == nil {
		return nil, fmt.Errorf("network finder required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:     repo,
		stock:    stock,
		networks: networks,
		events:   events,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	order, err := s.repo.FindByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// ConfirmPayment settles a blockchain-method order. A second confirmation
// is rejected; only the first accepted hash ever lands on the order.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Order, error) {
	order, err := s.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodBlockchain {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order does not take payment confirmation").
			WithDetails(map[string]string{"payment_method": order.PaymentMethod.String()})
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
	}
	if order.Status == enums.OrderStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is canceled")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot accept a payment").
			WithDetails(map[string]string{"status": order.Status.String()})
	}

	name := strings.TrimSpace(input.Network)
	if name == "" && order.PaymentNetwork != nil {
		name = *order.PaymentNetwork
	}
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment network is required")
	}
	hash := strings.TrimSpace(input.TxHash)
	if hash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction hash is required")
	}
	if _, err := s.networks.FindEnabledByName(ctx, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment network is not configured").
				WithDetails(map[string]string{"network": name})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment network")
	}
	network, txHash := &name, &hash

	tenant, ok := tenancy.FromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no tenant database in request context")
	}

	paidAt := time.Now().UTC()
	err = db.RunInTx(tenant.DB, func(tx *gorm.DB) error {
		txCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: tenant.Marketplace, DB: tx})
		claimed, err := s.repo.MarkPaid(txCtx, order.ID, network, txHash, paidAt)
		if err != nil {
			return err
		}
		if !claimed {
			// a concurrent confirmation beat this one to the claim
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Tenant:        tenant.Marketplace.Slug,
			Data: payloads.OrderPaidEvent{
				OrderID:         order.ID,
				OrderNumber:     order.OrderNumber,
				TxHash:          input.TxHash,
				Network:         input.Network,
				CommissionCents: order.CommissionCents,
				PayoutCents:     order.PayoutCents,
				PaidAt:          paidAt,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}
	return s.Get(ctx, order.ID)
}

// Cancel voids a pending order and puts its stock back. Canceling an
// already canceled order returns it unchanged.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCanceled {
		return order, nil
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be canceled").
			WithDetails(map[string]string{"status": order.Status.String()})
	}

	tenant, ok := tenancy.FromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no tenant database in request context")
	}

	canceledAt := time.Now().UTC()
	err = db.RunInTx(tenant.DB, func(tx *gorm.DB) error {
		txCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: tenant.Marketplace, DB: tx})
		claimed, err := s.repo.MarkCanceled(txCtx, order.ID, canceledAt)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		for _, item := range order.Items {
			if err := s.stock.RestoreStock(txCtx, item.VariantID, item.Qty); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Tenant:        tenant.Marketplace.Slug,
			Data: payloads.OrderCanceledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CanceledAt:  canceledAt,
				Reason:      strings.TrimSpace(reason),
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	return s.Get(ctx, order.ID)
}

// ShipItem marks one line as shipped by its vendor.
func (s *service) ShipItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error) {
	return s.moveItem(ctx, itemID, enums.FulfillmentStatusShipped)
}

// DeliverItem marks one line as delivered. Once every line that was not
// canceled is delivered the order itself closes as fulfilled.
func (s *service) DeliverItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error) {
	return s.moveItem(ctx, itemID, enums.FulfillmentStatusDelivered)
}

var fulfillmentOrder = map[enums.FulfillmentStatus]int{
	enums.FulfillmentStatusUnfulfilled: 0,
	enums.FulfillmentStatusShipped:     1,
	enums.FulfillmentStatusDelivered:   2,
}

func (s *service) moveItem(ctx context.Context, itemID uuid.UUID, target enums.FulfillmentStatus) (*models.Order, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	order, err := s.Get(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
			WithDetails(map[string]string{"status": order.Status.String()})
	}
	if item.FulfillmentStatus == enums.FulfillmentStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line is canceled")
	}
	if fulfillmentOrder[target] <= fulfillmentOrder[item.FulfillmentStatus] {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line cannot move backwards").
			WithDetails(map[string]string{"fulfillment_status": item.FulfillmentStatus.String()})
	}

	tenant, ok := tenancy.FromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no tenant database in request context")
	}

	now := time.Now().UTC()
	err = db.RunInTx(tenant.DB, func(tx *gorm.DB) error {
		txCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: tenant.Marketplace, DB: tx})
		if err := s.repo.UpdateItemFulfillment(txCtx, item.ID, target, now); err != nil {
			return err
		}
		if target != enums.FulfillmentStatusDelivered {
			return nil
		}
		fresh, err := s.repo.FindByID(txCtx, order.ID)
		if err != nil {
			return err
		}
		for _, line := range fresh.Items {
			if line.FulfillmentStatus == enums.FulfillmentStatusCanceled {
				continue
			}
			if line.FulfillmentStatus != enums.FulfillmentStatusDelivered {
				return nil
			}
		}
		closed, err := s.repo.MarkFulfilled(txCtx, order.ID, now)
		if err != nil || !closed {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Tenant:        tenant.Marketplace.Slug,
			Data: payloads.OrderFulfilledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				FulfilledAt: now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fulfillment")
	}
	return s.Get(ctx, order.ID)
}
