package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox/payloads"
)

const (
	defaultPaymentWindow = 24 * time.Hour
	expiryBatchSize      = 200
)

// marketplaceSource lists the tenant fleet a job sweeps.
type marketplaceSource interface {
	ListActiveWithConnections(ctx context.Context) ([]models.Marketplace, error)
}

// tenantPool hands out a pooled client for one marketplace's database.
type tenantPool interface {
	Handle(ctx context.Context, marketplace *models.Marketplace) (*db.Client, error)
}

type staleOrderStore interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkExpired(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
}

type stockRestorer interface {
	RestoreStock(ctx context.Context, variantID uuid.UUID, qty int) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderTTLJobParams configure the payment-window sweep.
type OrderTTLJobParams struct {
	Logger        *logger.Logger
	Marketplaces  marketplaceSource
	Pools         tenantPool
	Orders        staleOrderStore
	Stock         stockRestorer
	Events        outboxEmitter
	PaymentWindow time.Duration
}

// NewOrderTTLJob builds the job that expires pending unpaid orders whose
// payment window has lapsed, restoring their reserved stock.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Marketplaces == nil {
		return nil, fmt.Errorf("marketplace source required")
	}
	if params.Pools == nil {
		return nil, fmt.Errorf("tenant pool required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	window := params.PaymentWindow
	if window <= 0 {
		window = defaultPaymentWindow
	}
	return &orderTTLJob{
		logg:         params.Logger,
		marketplaces: params.Marketplaces,
		pools:        params.Pools,
		orders:       params.Orders,
		stock:        params.Stock,
		events:       params.Events,
		window:       window,
		now:          time.Now,
	}, nil
}

type orderTTLJob struct {
	logg         *logger.Logger
	marketplaces marketplaceSource
	pools        tenantPool
	orders       staleOrderStore
	stock        stockRestorer
	events       outboxEmitter
	window       time.Duration
	now          func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run sweeps every active marketplace. A failing tenant does not stop the
// sweep of the others.
func (j *orderTTLJob) Run(ctx context.Context) error {
	marketplaces, err := j.marketplaces.ListActiveWithConnections(ctx)
	if err != nil {
		return fmt.Errorf("list active marketplaces: %w", err)
	}
	var errs []error
	for i := range marketplaces {
		marketplace := marketplaces[i]
		if err := j.sweepTenant(ctx, marketplace); err != nil {
			j.logg.Error(j.logg.WithField(ctx, "marketplace", marketplace.Slug), "tenant sweep failed", err)
			errs = append(errs, fmt.Errorf("tenant %s: %w", marketplace.Slug, err))
		}
	}
	return multierr.Combine(errs...)
}

func (j *orderTTLJob) sweepTenant(ctx context.Context, marketplace models.Marketplace) error {
	client, err := j.pools.Handle(ctx, &marketplace)
	if err != nil {
		return fmt.Errorf("dial tenant: %w", err)
	}
	tenantCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: marketplace, DB: client.DB()})

	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.orders.FindStalePending(tenantCtx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}
	expired := 0
	for _, order := range stale {
		claimed, err := j.expireOrder(ctx, marketplace, client.DB(), order)
		if err != nil {
			return fmt.Errorf("expire order %s: %w", order.OrderNumber, err)
		}
		if claimed {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"marketplace": marketplace.Slug,
		"candidates":  len(stale),
		"expired":     expired,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return nil
}

// expireOrder flips one order to expired inside a tenant transaction. The
// conditional update claims the order; a concurrent payment confirmation
// or cancellation losing the race leaves nothing to do here.
func (j *orderTTLJob) expireOrder(ctx context.Context, marketplace models.Marketplace, handle *gorm.DB, order models.Order) (bool, error) {
	expiredAt := j.now().UTC()
	claimed := false
	err := db.RunInTx(handle, func(tx *gorm.DB) error {
		txCtx := tenancy.WithTenant(ctx, &tenancy.Tenant{Marketplace: marketplace, DB: tx})
		ok, err := j.orders.MarkExpired(txCtx, order.ID, expiredAt)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		claimed = true
		for _, item := range order.Items {
			if item.FulfillmentStatus == enums.FulfillmentStatusCanceled {
				continue
			}
			if err := j.stock.RestoreStock(txCtx, item.VariantID, item.Qty); err != nil {
				return err
			}
		}
		return j.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Tenant:        marketplace.Slug,
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				ExpiredAt:   expiredAt,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
