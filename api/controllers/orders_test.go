package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/api/middleware"
	ordersvc "github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

type stubOrderService struct {
	order     *models.Order
	confirmed *models.Order
}

func (s *stubOrderService) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrderService) GetByNumber(context.Context, string) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrderService) ListByCustomer(context.Context, uuid.UUID, int) ([]models.Order, error) {
	if s.order == nil {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrderService) ConfirmPayment(_ context.Context, input ordersvc.ConfirmPaymentInput) (*models.Order, error) {
	if s.confirmed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment network is not configured")
	}
	return s.confirmed, nil
}

func (s *stubOrderService) Cancel(context.Context, uuid.UUID, string) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrderService) ShipItem(context.Context, uuid.UUID) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrderService) DeliverItem(context.Context, uuid.UUID) (*models.Order, error) {
	return s.order, nil
}

func orderFor(customerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "MKT-20260830-ABCDEFGH",
		CustomerID:    customerID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		PaymentMethod: enums.PaymentMethodBlockchain,
	}
}

func serveOrderDetail(svc ordersvc.Service, orderID uuid.UUID, callerID uuid.UUID) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/v1/orders/{orderID}", OrderDetail(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), callerID.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestOrderDetailReturnsOwnOrder(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	order := orderFor(customerID)
	svc := &stubOrderService{order: order}

	rec := serveOrderDetail(svc, order.ID, customerID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), order.OrderNumber) {
		t.Fatalf("body missing order number: %s", rec.Body.String())
	}
}

func TestOrderDetailHidesForeignOrders(t *testing.T) {
	t.Parallel()

	order := orderFor(uuid.New())
	svc := &stubOrderService{order: order}

	rec := serveOrderDetail(svc, order.ID, uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestOrderConfirmPaymentRequiresTxHash(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	order := orderFor(customerID)
	svc := &stubOrderService{order: order, confirmed: order}

	r := chi.NewRouter()
	r.Post("/api/v1/orders/{orderID}/confirm-payment", OrderConfirmPayment(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/confirm-payment", strings.NewReader(`{"network":"ethereum"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), customerID.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tx_hash") {
		t.Fatalf("body missing field detail: %s", rec.Body.String())
	}
}

func TestOrderListRequiresIdentity(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	OrderList(svc, nil)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
