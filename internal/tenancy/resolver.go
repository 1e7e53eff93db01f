package tenancy

import (
	"context"
	"errors"
	"net"
	"strings"

	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
)

type resolverRepository interface {
	FindBySlug(ctx context.Context, slug string) (*models.Marketplace, error)
	FindByDomain(ctx context.Context, domain string) (*models.Marketplace, error)
}

// Resolver maps an incoming request to a tenant. A <slug>.<base domain>
// subdomain wins; the marketplace key header applies only when the Host
// carries no tenant subdomain, then registered custom domains are tried.
// The literal www subdomain is never a tenant key.
type Resolver struct {
	repo  resolverRepository
	pools *Registry
	cfg   config.TenancyConfig
}

// NewResolver wires a resolver on the registry.
func NewResolver(repo resolverRepository, registry *Registry, cfg config.TenancyConfig) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("repository required")
	}
	if registry == nil {
		return nil, errors.New("registry required")
	}
	return &Resolver{repo: repo, pools: registry, cfg: cfg}, nil
}

// Resolve finds the marketplace for the request and attaches an open tenant
// database handle. The returned Tenant is request-scoped.
func (r *Resolver) Resolve(ctx context.Context, host, headerValue string) (*Tenant, error) {
	marketplace, err := r.lookup(ctx, host, headerValue)
	if err != nil {
		return nil, err
	}

	switch marketplace.Status {
	case enums.MarketplaceStatusActive:
	case enums.MarketplaceStatusSuspended:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "marketplace is suspended")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "marketplace is not ready").
			WithDetails(map[string]string{"status": marketplace.Status.String()})
	}

	client, err := r.pools.Handle(ctx, marketplace)
	if err != nil {
		return nil, err
	}

	return &Tenant{Marketplace: *marketplace, DB: client.DB()}, nil
}

func (r *Resolver) lookup(ctx context.Context, host, headerValue string) (*models.Marketplace, error) {
	hostname := normalizeHost(host)
	base := strings.ToLower(r.cfg.BaseDomain)

	onBase := hostname == base
	hostSlug := ""
	if slug, ok := strings.CutSuffix(hostname, "."+base); ok {
		onBase = true
		if slug != "" && slug != "www" && !strings.Contains(slug, ".") {
			hostSlug = slug
		}
	}

	switch {
	case hostSlug != "":
		return r.find(ctx, func(ctx context.Context) (*models.Marketplace, error) {
			return r.repo.FindBySlug(ctx, hostSlug)
		})
	case strings.TrimSpace(headerValue) != "":
		slug := strings.ToLower(strings.TrimSpace(headerValue))
		return r.find(ctx, func(ctx context.Context) (*models.Marketplace, error) {
			return r.repo.FindBySlug(ctx, slug)
		})
	case !onBase && hostname != "":
		return r.find(ctx, func(ctx context.Context) (*models.Marketplace, error) {
			return r.repo.FindByDomain(ctx, hostname)
		})
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not identified")
}

func (r *Resolver) find(ctx context.Context, fn func(context.Context) (*models.Marketplace, error)) (*models.Marketplace, error) {
	marketplace, err := fn(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "marketplace not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace")
	}
	return marketplace, nil
}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return ""
	}
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	return strings.TrimSuffix(h, ".")
}
