package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/internal/products"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

type fakeMarketplaceSource struct {
	marketplaces []models.Marketplace
}

func (f *fakeMarketplaceSource) ListActiveWithConnections(context.Context) ([]models.Marketplace, error) {
	return f.marketplaces, nil
}

type fakePool struct {
	clients map[uuid.UUID]*db.Client
}

func (f *fakePool) Handle(_ context.Context, marketplace *models.Marketplace) (*db.Client, error) {
	client, ok := f.clients[marketplace.ID]
	if !ok {
		return nil, fmt.Errorf("no client for %s", marketplace.Slug)
	}
	return client, nil
}

type captureEmitter struct {
	events []outbox.DomainEvent
}

func (c *captureEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func openTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	ddl := []string{
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT,
			price_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE product_variants (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price_cents INTEGER,
			stock_qty INTEGER NOT NULL DEFAULT 0,
			backorder_allowed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
		`CREATE TABLE orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			cart_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			payment_method TEXT NOT NULL,
			payment_network TEXT,
			payment_tx_hash TEXT,
			crypto_amount TEXT,
			subtotal_cents INTEGER NOT NULL,
			discount_cents INTEGER NOT NULL DEFAULT 0,
			tax_cents INTEGER NOT NULL DEFAULT 0,
			commission_rate TEXT NOT NULL,
			commission_cents INTEGER NOT NULL,
			payout_cents INTEGER NOT NULL,
			total_cents INTEGER NOT NULL,
			shipping_address TEXT,
			paid_at DATETIME,
			canceled_at DATETIME,
			fulfilled_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			sku TEXT NOT NULL,
			unit_price_cents INTEGER NOT NULL,
			qty INTEGER NOT NULL,
			discount_cents INTEGER NOT NULL DEFAULT 0,
			tax_cents INTEGER NOT NULL DEFAULT 0,
			line_total_cents INTEGER NOT NULL,
			commission_rate TEXT NOT NULL DEFAULT '10.00',
			commission_cents INTEGER NOT NULL,
			vendor_payout_cents INTEGER NOT NULL,
			fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
			shipped_at DATETIME,
			delivered_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}
	return conn
}

type ttlHarness struct {
	job         *orderTTLJob
	conn        *gorm.DB
	marketplace models.Marketplace
	ordersRepo  *orders.Repository
	products    *products.Repository
	emitter     *captureEmitter
	now         time.Time
}

func newTTLHarness(t *testing.T) *ttlHarness {
	t.Helper()
	conn := openTenantDB(t)
	marketplace := models.Marketplace{ID: uuid.New(), Slug: "acme", Status: enums.MarketplaceStatusActive}
	ordersRepo := orders.NewRepository()
	productsRepo := products.NewRepository()
	emitter := &captureEmitter{}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Marketplaces: &fakeMarketplaceSource{marketplaces: []models.Marketplace{marketplace}},
		Pools:        &fakePool{clients: map[uuid.UUID]*db.Client{marketplace.ID: db.FromGorm(conn)}},
		Orders:       ordersRepo,
		Stock:        productsRepo,
		Events:       emitter,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	ttl := job.(*orderTTLJob)
	ttl.now = func() time.Time { return now }
	return &ttlHarness{
		job:         ttl,
		conn:        conn,
		marketplace: marketplace,
		ordersRepo:  ordersRepo,
		products:    productsRepo,
		emitter:     emitter,
		now:         now,
	}
}

func (h *ttlHarness) tenantCtx() context.Context {
	return tenancy.WithTenant(context.Background(), &tenancy.Tenant{Marketplace: h.marketplace, DB: h.conn})
}

// seedOrder writes a pending order with one two-unit line and backdates it.
func (h *ttlHarness) seedOrder(t *testing.T, age time.Duration) (*models.Order, uuid.UUID) {
	t.Helper()
	ctx := h.tenantCtx()
	product := &models.Product{
		VendorID:   uuid.New(),
		SKU:        fmt.Sprintf("SKU-%s", uuid.NewString()[:8]),
		Title:      "Widget",
		PriceCents: 2500,
		Currency:   "USD",
		IsActive:   true,
		Variants: []models.ProductVariant{
			{SKU: fmt.Sprintf("VAR-%s", uuid.NewString()[:8]), Name: "Default", StockQty: 8},
		},
	}
	if err := h.products.Create(ctx, product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	variantID := product.Variants[0].ID
	if ok, err := h.products.DecrementStock(ctx, variantID, 2); err != nil || !ok {
		t.Fatalf("failed to reserve stock: ok=%v err=%v", ok, err)
	}
	order := &models.Order{
		OrderNumber:     fmt.Sprintf("MKT-20260830-%s", uuid.NewString()[:8]),
		CustomerID:      uuid.New(),
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		PaymentMethod:   enums.PaymentMethodBlockchain,
		SubtotalCents:   5000,
		CommissionRate:  "10.00",
		CommissionCents: 500,
		PayoutCents:     4500,
		TotalCents:      5000,
		Items: []models.OrderItem{{
			VendorID:          product.VendorID,
			ProductID:         product.ID,
			VariantID:         variantID,
			Title:             product.Title,
			SKU:               product.Variants[0].SKU,
			UnitPriceCents:    2500,
			Qty:               2,
			LineTotalCents:    5000,
			CommissionRate:    "10.00",
			CommissionCents:   500,
			VendorPayoutCents: 4500,
			FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
		}},
	}
	if err := h.ordersRepo.Create(ctx, order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	createdAt := h.now.Add(-age)
	if err := h.conn.Exec("UPDATE orders SET created_at = ? WHERE id = ?", createdAt, order.ID).Error; err != nil {
		t.Fatalf("failed to backdate order: %v", err)
	}
	return order, variantID
}

func TestOrderTTLJobExpiresStaleOrdersAndRestoresStock(t *testing.T) {
	t.Parallel()
	h := newTTLHarness(t)
	order, variantID := h.seedOrder(t, 48*time.Hour)

	if err := h.job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	reloaded, err := h.ordersRepo.FindByID(h.tenantCtx(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusExpired {
		t.Fatalf("expected expired order, got %s", reloaded.Status)
	}
	for _, item := range reloaded.Items {
		if item.FulfillmentStatus != enums.FulfillmentStatusCanceled {
			t.Fatalf("expected canceled item, got %s", item.FulfillmentStatus)
		}
	}
	stock, err := h.products.StockRemaining(h.tenantCtx(), variantID)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock restored to 8, got %d", stock)
	}
	if len(h.emitter.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.emitter.events))
	}
	if h.emitter.events[0].EventType != enums.EventOrderExpired {
		t.Fatalf("unexpected event type: %s", h.emitter.events[0].EventType)
	}
}

func TestOrderTTLJobSkipsOrdersInsideTheWindow(t *testing.T) {
	t.Parallel()
	h := newTTLHarness(t)
	order, variantID := h.seedOrder(t, 2*time.Hour)

	if err := h.job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	reloaded, err := h.ordersRepo.FindByID(h.tenantCtx(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPending {
		t.Fatalf("recent order must stay pending, got %s", reloaded.Status)
	}
	stock, err := h.products.StockRemaining(h.tenantCtx(), variantID)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 6 {
		t.Fatalf("reserved stock must stay reserved, got %d", stock)
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("expected no events, got %d", len(h.emitter.events))
	}
}

func TestOrderTTLJobIgnoresPaidOrders(t *testing.T) {
	t.Parallel()
	h := newTTLHarness(t)
	order, _ := h.seedOrder(t, 48*time.Hour)
	err := h.conn.Exec(
		"UPDATE orders SET status = ?, payment_status = ? WHERE id = ?",
		enums.OrderStatusPaid, enums.PaymentStatusPaid, order.ID,
	).Error
	if err != nil {
		t.Fatalf("mark order paid: %v", err)
	}

	if err := h.job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	reloaded, err := h.ordersRepo.FindByID(h.tenantCtx(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPaid {
		t.Fatalf("paid order must not expire, got %s", reloaded.Status)
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("expected no events, got %d", len(h.emitter.events))
	}
}
