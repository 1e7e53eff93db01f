package tenancy

import (
	"context"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/security"
)

type stubResolverRepo struct {
	bySlug   map[string]*models.Marketplace
	byDomain map[string]*models.Marketplace
}

func (s *stubResolverRepo) FindBySlug(ctx context.Context, slug string) (*models.Marketplace, error) {
	if m, ok := s.bySlug[slug]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubResolverRepo) FindByDomain(ctx context.Context, domain string) (*models.Marketplace, error) {
	if m, ok := s.byDomain[domain]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestResolver(t *testing.T, kc *security.Keychain, repo *stubResolverRepo) *Resolver {
	t.Helper()

	cfg := provisionTestConfig(config.DriverPostgres)

	registry := NewRegistry(cfg, kc)
	var dials atomic.Int64
	registry.open = newStubOpener(t, &dials)

	resolver, err := NewResolver(repo, registry, cfg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func TestResolveBySubdomain(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Status = enums.MarketplaceStatusActive

	repo := &stubResolverRepo{bySlug: map[string]*models.Marketplace{"acme": m}}

	cfg := provisionTestConfig(config.DriverPostgres)
	registry := NewRegistry(cfg, kc)
	var dials atomic.Int64
	registry.open = newStubOpener(t, &dials)

	resolver, err := NewResolver(repo, registry, cfg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	tenant, err := resolver.Resolve(context.Background(), "acme.marketgrid.dev:8080", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tenant.Slug() != "acme" {
		t.Fatalf("unexpected tenant %q", tenant.Slug())
	}
	if tenant.DB == nil {
		t.Fatal("tenant handle missing")
	}
}

func TestResolveSubdomainWinsOverHeader(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	acme := registryTestMarketplace(t, kc)
	acme.Status = enums.MarketplaceStatusActive
	beta := registryTestMarketplace(t, kc)
	beta.Slug = "beta"
	beta.Status = enums.MarketplaceStatusActive

	repo := &stubResolverRepo{bySlug: map[string]*models.Marketplace{"acme": acme, "beta": beta}}
	resolver := newTestResolver(t, kc, repo)

	tenant, err := resolver.Resolve(context.Background(), "acme.marketgrid.dev", "Beta")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tenant.Slug() != "acme" {
		t.Fatalf("subdomain should win, got %q", tenant.Slug())
	}
}

func TestResolveHeaderWithoutTenantSubdomain(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Slug = "beta"
	m.Status = enums.MarketplaceStatusActive

	repo := &stubResolverRepo{bySlug: map[string]*models.Marketplace{"beta": m}}
	resolver := newTestResolver(t, kc, repo)

	for _, host := range []string{"marketgrid.dev", "www.marketgrid.dev"} {
		tenant, err := resolver.Resolve(context.Background(), host, "Beta")
		if err != nil {
			t.Fatalf("resolve %s: %v", host, err)
		}
		if tenant.Slug() != "beta" {
			t.Fatalf("host %s: expected header tenant, got %q", host, tenant.Slug())
		}
	}
}

func TestResolveWWWIsNeverATenant(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Slug = "www"
	m.Status = enums.MarketplaceStatusActive

	repo := &stubResolverRepo{bySlug: map[string]*models.Marketplace{"www": m}}
	resolver := newTestResolver(t, kc, repo)

	_, err := resolver.Resolve(context.Background(), "www.marketgrid.dev", "")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected no tenant for www, got %v", err)
	}
}

func TestResolveCustomDomain(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Status = enums.MarketplaceStatusActive

	repo := &stubResolverRepo{byDomain: map[string]*models.Marketplace{"shop.acme.com": m}}

	cfg := provisionTestConfig(config.DriverPostgres)
	registry := NewRegistry(cfg, kc)
	var dials atomic.Int64
	registry.open = newStubOpener(t, &dials)

	resolver, err := NewResolver(repo, registry, cfg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	tenant, err := resolver.Resolve(context.Background(), "shop.acme.com", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tenant.Slug() != "acme" {
		t.Fatalf("unexpected tenant %q", tenant.Slug())
	}
}

func TestResolveBaseDomainHasNoTenant(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, provisionTestKeychain(t), &stubResolverRepo{})

	_, err := resolver.Resolve(context.Background(), "marketgrid.dev", "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveUnknownSlug(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, provisionTestKeychain(t), &stubResolverRepo{})

	_, err := resolver.Resolve(context.Background(), "ghost.marketgrid.dev", "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveSuspendedMarketplace(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Status = enums.MarketplaceStatusSuspended

	resolver := newTestResolver(t, kc, &stubResolverRepo{
		bySlug: map[string]*models.Marketplace{"acme": m},
	})

	_, err := resolver.Resolve(context.Background(), "acme.marketgrid.dev", "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolvePendingMarketplace(t *testing.T) {
	t.Parallel()

	kc := provisionTestKeychain(t)
	m := registryTestMarketplace(t, kc)
	m.Status = enums.MarketplaceStatusPending

	resolver := newTestResolver(t, kc, &stubResolverRepo{
		bySlug: map[string]*models.Marketplace{"acme": m},
	})

	_, err := resolver.Resolve(context.Background(), "acme.marketgrid.dev", "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestTenantContextRoundTrip(t *testing.T) {
	t.Parallel()

	tenant := &Tenant{Marketplace: models.Marketplace{Slug: "acme"}}
	ctx := WithTenant(context.Background(), tenant)

	got, ok := FromContext(ctx)
	if !ok || got.Slug() != "acme" {
		t.Fatalf("tenant not recovered: %v %v", got, ok)
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should have no tenant")
	}
	if _, ok := DBFromContext(ctx); ok {
		t.Fatal("tenant without handle should report no DB")
	}
}
