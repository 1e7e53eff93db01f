package tenancy

import (
	"context"

	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
)

type contextKey struct{}

// Tenant is the per-request view of a resolved marketplace: the platform row
// plus an open handle on the tenant's own database. It travels in the request
// context so no tenant state ever lives in a package-level variable.
type Tenant struct {
	Marketplace models.Marketplace
	DB          *gorm.DB
}

// Slug returns the marketplace slug.
func (t *Tenant) Slug() string {
	if t == nil {
		return ""
	}
	return t.Marketplace.Slug
}

// WithTenant attaches the resolved tenant to the context.
func WithTenant(ctx context.Context, tenant *Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, tenant)
}

// FromContext returns the tenant attached to the context, if any.
func FromContext(ctx context.Context) (*Tenant, bool) {
	tenant, ok := ctx.Value(contextKey{}).(*Tenant)
	if !ok || tenant == nil {
		return nil, false
	}
	return tenant, true
}

// DBFromContext returns the tenant database handle attached to the context.
// Repositories that serve tenant-scoped requests resolve their connection
// through here.
func DBFromContext(ctx context.Context) (*gorm.DB, bool) {
	tenant, ok := FromContext(ctx)
	if !ok || tenant.DB == nil {
		return nil, false
	}
	return tenant.DB, true
}
