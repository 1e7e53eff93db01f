package middleware

import (
	"context"
	"net/http"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
)

type tenantResolver interface {
	Resolve(ctx context.Context, host, headerValue string) (*tenancy.Tenant, error)
}

// Tenant resolves the marketplace for the request and rides its database
// handle on the request context. Routes mounted under this middleware never
// see a request without a resolved tenant.
func Tenant(resolver tenantResolver, cfg config.TenancyConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "tenant resolver unavailable"))
				return
			}

			tenant, err := resolver.Resolve(r.Context(), r.Host, r.Header.Get(cfg.Header))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := tenancy.WithTenant(r.Context(), tenant)
			if logg != nil {
				ctx = logg.WithField(ctx, "marketplace", tenant.Slug())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
