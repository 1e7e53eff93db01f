package tenancy

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/metrics"
	"github.com/marketgrid/marketgrid-backend/pkg/security"
)

type stubAdmin struct {
	queries []string
	fail    map[string]error
}

func (s *stubAdmin) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.queries = append(s.queries, query)
	for fragment, err := range s.fail {
		if strings.Contains(query, fragment) {
			return nil, err
		}
	}
	return nil, nil
}

type stubMigrator struct {
	version int64
	err     error
	dsns    []string
}

func (s *stubMigrator) Migrate(ctx context.Context, driver, dsn string) (int64, error) {
	s.dsns = append(s.dsns, dsn)
	if s.err != nil {
		return 0, s.err
	}
	return s.version, nil
}

type stubProvisionRepo struct {
	statuses []enums.MarketplaceStatus
	failures []*string
	conn     *models.TenantConnection
}

func (s *stubProvisionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MarketplaceStatus, failure *string) error {
	s.statuses = append(s.statuses, status)
	s.failures = append(s.failures, failure)
	return nil
}

func (s *stubProvisionRepo) SaveConnection(ctx context.Context, conn *models.TenantConnection) error {
	s.conn = conn
	return nil
}

func (s *stubProvisionRepo) UpdateMigratedVersion(ctx context.Context, marketplaceID uuid.UUID, version int64) error {
	return nil
}

func provisionTestKeychain(t *testing.T) *security.Keychain {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	kc, err := security.NewKeychain(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("keychain: %v", err)
	}
	return kc
}

func provisionTestConfig(driver string) config.TenancyConfig {
	return config.TenancyConfig{
		Driver:         driver,
		Host:           "db.internal",
		Port:           5432,
		SSLMode:        "disable",
		DatabasePrefix: "mg_tenant_",
		BaseDomain:     "marketgrid.dev",
	}
}

func newTestProvisioner(t *testing.T, admin *stubAdmin, migrator *stubMigrator, repo *stubProvisionRepo, driver string) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(
		admin, migrator, repo,
		provisionTestKeychain(t),
		provisionTestConfig(driver),
		metrics.NewProvisioningMetrics(nil),
		nil,
	)
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	return p
}

func TestProvisionPostgresHappyPath(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{}
	migrator := &stubMigrator{version: 20260815120000}
	repo := &stubProvisionRepo{}
	p := newTestProvisioner(t, admin, migrator, repo, config.DriverPostgres)

	marketplace := &models.Marketplace{ID: uuid.New(), Slug: "acme-market"}
	if err := p.Provision(context.Background(), marketplace); err != nil {
		t.Fatalf("provision: %v", err)
	}

	wantStatuses := []enums.MarketplaceStatus{
		enums.MarketplaceStatusProvisioning,
		enums.MarketplaceStatusActive,
	}
	if len(repo.statuses) != len(wantStatuses) {
		t.Fatalf("unexpected status transitions %v", repo.statuses)
	}
	for i, want := range wantStatuses {
		if repo.statuses[i] != want {
			t.Fatalf("status %d: got %s want %s", i, repo.statuses[i], want)
		}
	}

	if repo.conn == nil {
		t.Fatal("connection not saved")
	}
	if repo.conn.DatabaseName != "mg_tenant_acme_market" {
		t.Fatalf("unexpected database name %q", repo.conn.DatabaseName)
	}
	if repo.conn.MigratedVersion != migrator.version {
		t.Fatalf("migrated version not recorded: %d", repo.conn.MigratedVersion)
	}
	if len(repo.conn.EncryptedPassword) == 0 {
		t.Fatal("password not sealed")
	}

	var sawCreateRole, sawCreateDB, sawGrant bool
	for _, q := range admin.queries {
		switch {
		case strings.HasPrefix(q, "CREATE ROLE"):
			sawCreateRole = true
		case strings.HasPrefix(q, "CREATE DATABASE"):
			sawCreateDB = true
		case strings.HasPrefix(q, "GRANT"):
			sawGrant = true
		}
	}
	if !sawCreateRole || !sawCreateDB || !sawGrant {
		t.Fatalf("missing DDL statements: %v", admin.queries)
	}
	if len(migrator.dsns) != 1 {
		t.Fatalf("expected one migration run, got %d", len(migrator.dsns))
	}
}

func TestProvisionRetryAfterDuplicateDatabase(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{fail: map[string]error{
		"CREATE DATABASE": &pgconn.PgError{Code: "42P04", Message: "database already exists"},
		"CREATE ROLE":     &pgconn.PgError{Code: "42710", Message: "role already exists"},
	}}
	migrator := &stubMigrator{version: 1}
	repo := &stubProvisionRepo{}
	p := newTestProvisioner(t, admin, migrator, repo, config.DriverPostgres)

	marketplace := &models.Marketplace{ID: uuid.New(), Slug: "acme"}
	if err := p.Provision(context.Background(), marketplace); err != nil {
		t.Fatalf("retry should converge, got %v", err)
	}

	if repo.statuses[len(repo.statuses)-1] != enums.MarketplaceStatusActive {
		t.Fatalf("expected active after retry, got %v", repo.statuses)
	}

	var sawAlterRole bool
	for _, q := range admin.queries {
		if strings.HasPrefix(q, "ALTER ROLE") {
			sawAlterRole = true
		}
	}
	if !sawAlterRole {
		t.Fatalf("expected password realignment on existing role: %v", admin.queries)
	}
}

func TestProvisionReusesStoredPassword(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{}
	migrator := &stubMigrator{version: 1}
	repo := &stubProvisionRepo{}
	kc := provisionTestKeychain(t)

	p, err := NewProvisioner(admin, migrator, repo, kc, provisionTestConfig(config.DriverPostgres), metrics.NewProvisioningMetrics(nil), nil)
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}

	sealed, err := kc.SealString("existing-password")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	marketplace := &models.Marketplace{
		ID:         uuid.New(),
		Slug:       "acme",
		Connection: &models.TenantConnection{EncryptedPassword: sealed},
	}

	if err := p.Provision(context.Background(), marketplace); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if len(migrator.dsns) != 1 || !strings.Contains(migrator.dsns[0], "existing-password") {
		t.Fatalf("stored password not reused: %v", migrator.dsns)
	}
}

func TestProvisionMigrationFailureMarksFailed(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{}
	migrator := &stubMigrator{err: errors.New("migration broke")}
	repo := &stubProvisionRepo{}
	p := newTestProvisioner(t, admin, migrator, repo, config.DriverPostgres)

	marketplace := &models.Marketplace{ID: uuid.New(), Slug: "acme"}
	if err := p.Provision(context.Background(), marketplace); err == nil {
		t.Fatal("expected migration error")
	}

	last := repo.statuses[len(repo.statuses)-1]
	if last != enums.MarketplaceStatusFailed {
		t.Fatalf("expected failed status, got %s", last)
	}
	if repo.failures[len(repo.failures)-1] == nil {
		t.Fatal("expected failure message recorded")
	}
	if repo.conn != nil {
		t.Fatal("connection must not be saved on failure")
	}
}

func TestProvisionMySQLUsesIfNotExists(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{}
	migrator := &stubMigrator{version: 1}
	repo := &stubProvisionRepo{}
	p := newTestProvisioner(t, admin, migrator, repo, config.DriverMySQL)

	marketplace := &models.Marketplace{ID: uuid.New(), Slug: "acme"}
	if err := p.Provision(context.Background(), marketplace); err != nil {
		t.Fatalf("provision: %v", err)
	}

	var sawCreateDB, sawCreateUser bool
	for _, q := range admin.queries {
		if strings.HasPrefix(q, "CREATE DATABASE IF NOT EXISTS") && strings.Contains(q, "utf8mb4") {
			sawCreateDB = true
		}
		if strings.HasPrefix(q, "CREATE USER IF NOT EXISTS") {
			sawCreateUser = true
		}
	}
	if !sawCreateDB || !sawCreateUser {
		t.Fatalf("missing mysql DDL: %v", admin.queries)
	}
}

func TestProvisionRejectsBadSlug(t *testing.T) {
	t.Parallel()

	admin := &stubAdmin{}
	migrator := &stubMigrator{}
	repo := &stubProvisionRepo{}
	p := newTestProvisioner(t, admin, migrator, repo, config.DriverPostgres)

	marketplace := &models.Marketplace{ID: uuid.New(), Slug: "bad;slug"}
	if err := p.Provision(context.Background(), marketplace); err == nil {
		t.Fatal("expected identifier rejection")
	}
	if len(admin.queries) != 0 {
		t.Fatalf("no DDL should run for invalid slug: %v", admin.queries)
	}
}
