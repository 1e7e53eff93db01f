package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/products"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

type stubNetworks struct {
	networks map[string]*models.PaymentNetwork
}

func (s *stubNetworks) FindEnabledByName(_ context.Context, name string) (*models.PaymentNetwork, error) {
	if network, ok := s.networks[name]; ok {
		return network, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) countByType(eventType enums.OutboxEventType) int {
	n := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type orderHarness struct {
	svc      Service
	repo     *Repository
	products *products.Repository
	emitter  *recordingEmitter
	conn     *gorm.DB
}

func newOrderHarness(t *testing.T) (*orderHarness, context.Context) {
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

	repo := NewRepository()
	productsRepo := products.NewRepository()
	emitter := &recordingEmitter{}
	networks := &stubNetworks{networks: map[string]*models.PaymentNetwork{
		"ethereum": {ID: uuid.New(), Name: "ethereum", ChainID: 1, Currency: "ETH", USDRate: "2000", ReceiverAddress: "0xMERCHANT", Enabled: true},
	}}

	svc, err := NewService(repo, productsRepo, networks, emitter, config.PaymentsConfig{OrderPrefix: "MKT"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := tenancy.WithTenant(context.Background(), &tenancy.Tenant{
		Marketplace: models.Marketplace{ID: uuid.New(), Slug: "acme"},
		DB:          conn,
	})
	h := &orderHarness{svc: svc, repo: repo, products: productsRepo, emitter: emitter, conn: conn}
	return h, ctx
}

func (h *orderHarness) seedOrder(t *testing.T, ctx context.Context, lines int) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:    fmt.Sprintf("MKT-20260830-%s", uuid.NewString()[:8]),
		CustomerID:     uuid.New(),
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusUnpaid,
		PaymentMethod:  enums.PaymentMethodBlockchain,
		SubtotalCents:  5000,
		CommissionRate: "10.00",
		CommissionCents: 500,
		PayoutCents:    4500,
		TotalCents:     5000,
	}
	for i := 0; i < lines; i++ {
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
		if ok, err := h.products.DecrementStock(ctx, product.Variants[0].ID, 2); err != nil || !ok {
			t.Fatalf("failed to reserve stock: ok=%v err=%v", ok, err)
		}
		order.Items = append(order.Items, models.OrderItem{
			VendorID:          product.VendorID,
			ProductID:         product.ID,
			VariantID:         product.Variants[0].ID,
			Title:             product.Title,
			SKU:               product.Variants[0].SKU,
			UnitPriceCents:    2500,
			Qty:               2,
			LineTotalCents:    5000,
			CommissionRate:    "10.00",
			CommissionCents:   500,
			VendorPayoutCents: 4500,
			FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
		})
	}
	if err := h.repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

func TestConfirmPaymentSettlesOrder(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	paid, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{
		OrderID: order.ID,
		Network: "ethereum",
		TxHash:  "0xabc123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.PaymentStatus != enums.PaymentStatusPaid || paid.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s/%s", paid.Status, paid.PaymentStatus)
	}
	if paid.PaidAt == nil {
		t.Fatal("expected paid_at to be stamped")
	}
	if h.emitter.countByType(enums.EventOrderPaid) != 1 {
		t.Fatalf("expected one paid event, got %d", h.emitter.countByType(enums.EventOrderPaid))
	}
}

func TestConfirmPaymentRejectsSecondConfirmation(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	first, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{
		OrderID: order.ID, Network: "ethereum", TxHash: "0xabc123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{
		OrderID: order.ID, Network: "ethereum", TxHash: "0xother456",
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected already-paid rejection, got %v", err)
	}

	// only the first accepted hash ever lands on the order
	settled, err := h.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.PaymentTxHash == nil || *settled.PaymentTxHash != "0xabc123" {
		t.Fatalf("expected first hash to stand, got %v", settled.PaymentTxHash)
	}
	if settled.PaidAt == nil || first.PaidAt == nil || !settled.PaidAt.Equal(*first.PaidAt) {
		t.Fatalf("rejection must not restamp paid_at: %v vs %v", settled.PaidAt, first.PaidAt)
	}
	if h.emitter.countByType(enums.EventOrderPaid) != 1 {
		t.Fatalf("rejection must not emit a second event, got %d", h.emitter.countByType(enums.EventOrderPaid))
	}
}

func TestConfirmPaymentRejectsCardOrders(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)

	order := &models.Order{
		OrderNumber:    fmt.Sprintf("MKT-20260830-%s", uuid.NewString()[:8]),
		CustomerID:     uuid.New(),
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusUnpaid,
		PaymentMethod:  enums.PaymentMethodCard,
		SubtotalCents:  1000,
		CommissionRate: "10.00",
		TotalCents:     1000,
	}
	if err := h.repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}

	_, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{
		OrderID: order.ID, Network: "ethereum", TxHash: "0xabc123",
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected card orders to be rejected, got %v", err)
	}

	fresh, err := h.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("card order must stay unpaid, got %s", fresh.PaymentStatus)
	}
}

func TestConfirmPaymentUnknownNetwork(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	_, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID, Network: "dogecoin", TxHash: "0x1"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmPaymentRequiresTxHash(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	_, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID, Network: "ethereum"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)
	variantID := order.Items[0].VariantID

	before, err := h.products.StockRemaining(ctx, variantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	canceled, err := h.svc.Cancel(ctx, order.ID, "changed my mind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canceled.Status != enums.OrderStatusCanceled || canceled.CanceledAt == nil {
		t.Fatalf("expected canceled order, got %+v", canceled)
	}

	after, err := h.products.StockRemaining(ctx, variantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != before+order.Items[0].Qty {
		t.Fatalf("expected stock restored to %d, got %d", before+order.Items[0].Qty, after)
	}
	if h.emitter.countByType(enums.EventOrderCanceled) != 1 {
		t.Fatalf("expected one canceled event, got %d", h.emitter.countByType(enums.EventOrderCanceled))
	}
}

func TestCancelTwiceIsIdempotent(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)
	variantID := order.Items[0].VariantID

	if _, err := h.svc.Cancel(ctx, order.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stockAfterFirst, _ := h.products.StockRemaining(ctx, variantID)

	if _, err := h.svc.Cancel(ctx, order.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stockAfterSecond, _ := h.products.StockRemaining(ctx, variantID)
	if stockAfterSecond != stockAfterFirst {
		t.Fatalf("repeat cancel must not restore stock again: %d vs %d", stockAfterFirst, stockAfterSecond)
	}
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	if _, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID, Network: "ethereum", TxHash: "0x1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, order.ID, ""); pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestFulfillmentClosesOrderWhenAllLinesDelivered(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 2)

	if _, err := h.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID, Network: "ethereum", TxHash: "0x1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, item := range order.Items {
		if _, err := h.svc.ShipItem(ctx, item.ID); err != nil {
			t.Fatalf("ship line %d: %v", i, err)
		}
	}
	partial, err := h.svc.DeliverItem(ctx, order.Items[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partial.Status != enums.OrderStatusPaid {
		t.Fatalf("order must stay paid until every line lands, got %s", partial.Status)
	}

	closed, err := h.svc.DeliverItem(ctx, order.Items[1].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.Status != enums.OrderStatusFulfilled || closed.FulfilledAt == nil {
		t.Fatalf("expected fulfilled order, got %+v", closed)
	}
	if h.emitter.countByType(enums.EventOrderFulfilled) != 1 {
		t.Fatalf("expected one fulfilled event, got %d", h.emitter.countByType(enums.EventOrderFulfilled))
	}
}

func TestShipBeforePaymentConflicts(t *testing.T) {
	t.Parallel()
	h, ctx := newOrderHarness(t)
	order := h.seedOrder(t, ctx, 1)

	if _, err := h.svc.ShipItem(ctx, order.Items[0].ID); pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func testTime() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func TestNewOrderNumberShape(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		number, err := NewOrderNumber("mkt", testTime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(number) != len("MKT-20260830-")+8 {
			t.Fatalf("unexpected shape %q", number)
		}
		if number[:13] != "MKT-20260830-" {
			t.Fatalf("unexpected prefix %q", number)
		}
		if seen[number] {
			t.Fatalf("duplicate order number %q", number)
		}
		seen[number] = true
	}
}
