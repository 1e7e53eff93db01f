package tenancy

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/security"
)

// opener dials a connection pool. Overridable in tests.
type opener func(driver, dsn string, pool db.PoolSettings) (*db.Client, error)

// Registry caches one connection pool per marketplace. Lookups take a read
// lock; the first request for a tenant dials the pool under the write lock
// with a second existence check, so concurrent requests share one pool.
type Registry struct {
	mtx      sync.RWMutex
	pools    map[uuid.UUID]*db.Client
	keychain *security.Keychain
	cfg      config.TenancyConfig
	open     opener
}

// NewRegistry builds an empty registry.
func NewRegistry(cfg config.TenancyConfig, keychain *security.Keychain) *Registry {
	return &Registry{
		pools:    make(map[uuid.UUID]*db.Client),
		keychain: keychain,
		cfg:      cfg,
		open:     db.Open,
	}
}

// Handle returns the pooled client for the marketplace, dialing it on first use.
func (r *Registry) Handle(ctx context.Context, marketplace *models.Marketplace) (*db.Client, error) {
	if marketplace == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "marketplace is required")
	}
	if marketplace.Connection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "marketplace has no stored connection")
	}

	r.mtx.RLock()
	client, ok := r.pools[marketplace.ID]
	r.mtx.RUnlock()
	if ok {
		return client, nil
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	// another request may have dialed while we waited for the lock
	if client, ok := r.pools[marketplace.ID]; ok {
		return client, nil
	}

	password, err := r.keychain.OpenString(marketplace.Connection.EncryptedPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "decrypt tenant credentials")
	}

	dsn, err := buildDSN(marketplace.Connection, password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build tenant dsn")
	}

	client, err = r.open(marketplace.Connection.Driver, dsn, db.PoolSettings{
		MaxOpenConns: r.cfg.MaxOpenConns,
		MaxIdleConns: r.cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dial tenant database")
	}

	r.pools[marketplace.ID] = client
	return client, nil
}

// Evict drops the cached pool for a marketplace, closing it if present.
// Called when a tenant is suspended or its credentials rotate.
func (r *Registry) Evict(marketplaceID uuid.UUID) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if client, ok := r.pools[marketplaceID]; ok {
		_ = client.Close()
		delete(r.pools, marketplaceID)
	}
}

// Close shuts down every cached pool.
func (r *Registry) Close() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for id, client := range r.pools {
		_ = client.Close()
		delete(r.pools, id)
	}
}

// Len reports how many pools are cached.
func (r *Registry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.pools)
}
