package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

// Base provides the shared foundation for tenant-scoped repositories.
// Repositories built on Base hold no connection of their own: the handle
// comes from the request context, where the tenant resolver put it. Inside
// a transaction the bound handle takes over via WithTx.
type Base struct {
	tx *gorm.DB
}

// DB resolves the GORM handle for the current request.
func (b Base) DB(ctx context.Context) (*gorm.DB, error) {
	if b.tx != nil {
		return b.tx, nil
	}
	if handle, ok := tenancy.DBFromContext(ctx); ok {
		return handle.WithContext(ctx), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "no tenant database in request context")
}

// WithTx returns a copy of the base bound to the given transaction.
func (b Base) WithTx(tx *gorm.DB) Base {
	return Base{tx: tx}
}
