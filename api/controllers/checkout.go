package controllers

import (
	"context"
	"net/http"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	checkoutsvc "github.com/marketgrid/marketgrid-backend/internal/checkout"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/types"
)

type networkReader interface {
	FindEnabledByName(ctx context.Context, name string) (*models.PaymentNetwork, error)
}

// Checkout converts the caller's open cart into an order. The payment
// instruction block is rendered after the commit from the settled network.
func Checkout(svc checkoutsvc.Service, networks networkReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		order, err := svc.PlaceOrder(r.Context(), checkoutsvc.PlaceOrderInput{
			CustomerID:      customerID,
			PaymentMethod:   method,
			Network:         payload.Network,
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		response := checkoutResponse{Order: newOrderResponse(order)}
		if order.PaymentMethod == enums.PaymentMethodBlockchain && order.PaymentNetwork != nil {
			if network, lookupErr := networks.FindEnabledByName(r.Context(), *order.PaymentNetwork); lookupErr == nil {
				response.PaymentInstructions = &paymentInstructions{
					Network:         network.Name,
					ChainID:         network.ChainID,
					Currency:        network.Currency,
					ReceiverAddress: network.ReceiverAddress,
					Amount:          stringOrEmpty(order.CryptoAmount),
					ExplorerURL:     network.ExplorerURL,
				}
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, response)
	}
}

type checkoutRequest struct {
	PaymentMethod   string        `json:"payment_method" validate:"required"`
	Network         string        `json:"network"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

type checkoutResponse struct {
	Order               orderResponse        `json:"order"`
	PaymentInstructions *paymentInstructions `json:"payment_instructions,omitempty"`
}

type paymentInstructions struct {
	Network         string `json:"network"`
	ChainID         int64  `json:"chain_id"`
	Currency        string `json:"currency"`
	ReceiverAddress string `json:"receiver_address"`
	Amount          string `json:"amount"`
	ExplorerURL     string `json:"explorer_url"`
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
