package controllers

import (
	"context"
	"net/http"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/api/validators"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
)

type networkStore interface {
	List(ctx context.Context) ([]models.PaymentNetwork, error)
	Upsert(ctx context.Context, network *models.PaymentNetwork) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// NetworkList exposes the supported settlement networks. The receiver
// address stays admin-only, so the public listing omits it.
func NetworkList(store networkStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		networks, err := store.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]networkResponse, 0, len(networks))
		for _, network := range networks {
			if !network.Enabled {
				continue
			}
			items = append(items, networkResponse{
				Name:        network.Name,
				ChainID:     network.ChainID,
				Currency:    network.Currency,
				USDRate:     network.USDRate,
				ExplorerURL: network.ExplorerURL,
			})
		}
		responses.WriteSuccess(w, map[string]any{"networks": items})
	}
}

// NetworkUpsert creates or updates a settlement network definition.
func NetworkUpsert(store networkStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload upsertNetworkRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		network := models.PaymentNetwork{
			Name:            payload.Name,
			ChainID:         payload.ChainID,
			Currency:        payload.Currency,
			USDRate:         payload.USDRate,
			ReceiverAddress: payload.ReceiverAddress,
			ExplorerURL:     payload.ExplorerURL,
			Enabled:         payload.Enabled,
		}
		if err := store.Upsert(r.Context(), &network); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, networkResponse{
			Name:        network.Name,
			ChainID:     network.ChainID,
			Currency:    network.Currency,
			USDRate:     network.USDRate,
			ExplorerURL: network.ExplorerURL,
		})
	}
}

type upsertNetworkRequest struct {
	Name            string `json:"name" validate:"required"`
	ChainID         int64  `json:"chain_id" validate:"required"`
	Currency        string `json:"currency" validate:"required"`
	USDRate         string `json:"usd_rate" validate:"required"`
	ReceiverAddress string `json:"receiver_address" validate:"required"`
	ExplorerURL     string `json:"explorer_url"`
	Enabled         bool   `json:"enabled"`
}

type networkResponse struct {
	Name        string `json:"name"`
	ChainID     int64  `json:"chain_id"`
	Currency    string `json:"currency"`
	USDRate     string `json:"usd_rate"`
	ExplorerURL string `json:"explorer_url"`
}
