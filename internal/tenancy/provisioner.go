package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/metrics"
	"github.com/marketgrid/marketgrid-backend/pkg/migrate"
	"github.com/marketgrid/marketgrid-backend/pkg/security"
)

// adminExecutor issues DDL against the maintenance database. CREATE DATABASE
// cannot run inside a transaction, so this is a bare executor, not a txRunner.
type adminExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// schemaMigrator brings a freshly created tenant database up to the current
// schema version.
type schemaMigrator interface {
	Migrate(ctx context.Context, driver, dsn string) (int64, error)
}

type provisionerRepository interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MarketplaceStatus, failure *string) error
	SaveConnection(ctx context.Context, conn *models.TenantConnection) error
	UpdateMigratedVersion(ctx context.Context, marketplaceID uuid.UUID, version int64) error
}

// Provisioner creates and migrates tenant databases. Every step is written
// to converge on retry: an "already exists" from the engine is treated the
// same as having created the object in this run.
type Provisioner struct {
	admin    adminExecutor
	migrator schemaMigrator
	repo     provisionerRepository
	keychain *security.Keychain
	cfg      config.TenancyConfig
	metrics  *metrics.ProvisioningMetrics
	logg     *logger.Logger
}

// NewProvisioner wires a provisioner.
func NewProvisioner(
	admin adminExecutor,
	migrator schemaMigrator,
	repo provisionerRepository,
	keychain *security.Keychain,
	cfg config.TenancyConfig,
	m *metrics.ProvisioningMetrics,
	logg *logger.Logger,
) (*Provisioner, error) {
	if admin == nil {
		return nil, fmt.Errorf("admin executor required")
	}
	if migrator == nil {
		return nil, fmt.Errorf("schema migrator required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if keychain == nil {
		return nil, fmt.Errorf("keychain required")
	}
	return &Provisioner{
		admin:    admin,
		migrator: migrator,
		repo:     repo,
		keychain: keychain,
		cfg:      cfg,
		metrics:  m,
		logg:     logg,
	}, nil
}

// Provision creates the tenant database, role, and schema for a marketplace
// and records the sealed connection on the platform. On failure the
// marketplace is marked failed with the stage that broke; calling Provision
// again picks up where the engine state actually is.
func (p *Provisioner) Provision(ctx context.Context, marketplace *models.Marketplace) error {
	if marketplace == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "marketplace is required")
	}

	started := time.Now()
	if p.logg != nil {
		ctx = p.logg.WithFields(ctx, map[string]any{
			"marketplace_id": marketplace.ID.String(),
			"slug":           marketplace.Slug,
			"driver":         p.cfg.Driver,
		})
		p.logg.Info(ctx, "provisioning tenant database")
	}

	if err := p.repo.UpdateStatus(ctx, marketplace.ID, enums.MarketplaceStatusProvisioning, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark provisioning")
	}

	conn, password, err := p.provision(ctx, marketplace)
	if err != nil {
		msg := err.Error()
		_ = p.repo.UpdateStatus(ctx, marketplace.ID, enums.MarketplaceStatusFailed, &msg)
		return err
	}

	sealed, err := p.keychain.SealString(password)
	if err != nil {
		return p.fail(ctx, marketplace.ID, "seal_credentials", err)
	}
	conn.EncryptedPassword = sealed

	if err := p.repo.SaveConnection(ctx, conn); err != nil {
		return p.fail(ctx, marketplace.ID, "save_connection", err)
	}

	if err := p.repo.UpdateStatus(ctx, marketplace.ID, enums.MarketplaceStatusActive, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark active")
	}

	p.metrics.ObserveDuration(p.cfg.Driver, time.Since(started))
	p.metrics.IncSuccess(p.cfg.Driver)
	if p.logg != nil {
		p.logg.Info(ctx, "tenant database provisioned")
	}
	return nil
}

func (p *Provisioner) provision(ctx context.Context, marketplace *models.Marketplace) (*models.TenantConnection, string, error) {
	dbName, err := databaseNameFor(p.cfg.DatabasePrefix, marketplace.Slug)
	if err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "database_name")
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "derive database name")
	}
	username := dbName

	password, err := p.resolvePassword(marketplace)
	if err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "credentials")
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve tenant credentials")
	}

	switch p.cfg.Driver {
	case config.DriverPostgres:
		err = p.provisionPostgres(ctx, dbName, username, password)
	case config.DriverMySQL:
		err = p.provisionMySQL(ctx, dbName, username, password)
	default:
		p.metrics.IncFailure(p.cfg.Driver, "driver")
		return nil, "", pkgerrors.New(pkgerrors.CodeConfiguration,
			fmt.Sprintf("unsupported tenancy driver %q", p.cfg.Driver))
	}
	if err != nil {
		return nil, "", err
	}

	conn := &models.TenantConnection{
		MarketplaceID: marketplace.ID,
		Driver:        p.cfg.Driver,
		Host:          p.cfg.Host,
		Port:          p.cfg.Port,
		DatabaseName:  dbName,
		Username:      username,
		SSLMode:       p.cfg.SSLMode,
	}

	dsn, err := buildDSN(conn, password)
	if err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "dsn")
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build tenant dsn")
	}

	version, err := p.migrator.Migrate(ctx, p.cfg.Driver, dsn)
	if err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "migrate")
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrate tenant database")
	}
	conn.MigratedVersion = version

	return conn, password, nil
}

// resolvePassword reuses the stored credential on retry so the role password
// set in a previous run keeps working; fresh marketplaces get a new secret.
func (p *Provisioner) resolvePassword(marketplace *models.Marketplace) (string, error) {
	if marketplace.Connection != nil && len(marketplace.Connection.EncryptedPassword) > 0 {
		password, err := p.keychain.OpenString(marketplace.Connection.EncryptedPassword)
		if err == nil {
			return password, nil
		}
	}
	return security.GeneratePassword()
}

func (p *Provisioner) provisionPostgres(ctx context.Context, dbName, username, password string) error {
	role := quoteIdentifier(config.DriverPostgres, username)
	database := quoteIdentifier(config.DriverPostgres, dbName)

	createRole := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", role, password)
	if _, err := p.admin.ExecContext(ctx, createRole); err != nil {
		if !db.IsDuplicateDatabase(err) {
			p.metrics.IncFailure(p.cfg.Driver, "create_role")
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant role")
		}
		// role survives from an earlier attempt; align its password
		alterRole := fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD '%s'", role, password)
		if _, err := p.admin.ExecContext(ctx, alterRole); err != nil {
			p.metrics.IncFailure(p.cfg.Driver, "create_role")
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset tenant role password")
		}
	}

	createDB := fmt.Sprintf("CREATE DATABASE %s OWNER %s ENCODING 'UTF8'", database, role)
	if _, err := p.admin.ExecContext(ctx, createDB); err != nil && !db.IsDuplicateDatabase(err) {
		p.metrics.IncFailure(p.cfg.Driver, "create_database")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant database")
	}

	grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", database, role)
	if _, err := p.admin.ExecContext(ctx, grant); err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "grant")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant tenant privileges")
	}

	return nil
}

func (p *Provisioner) provisionMySQL(ctx context.Context, dbName, username, password string) error {
	database := quoteIdentifier(config.DriverMySQL, dbName)

	createDB := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		database,
	)
	if _, err := p.admin.ExecContext(ctx, createDB); err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "create_database")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant database")
	}

	createUser := fmt.Sprintf("CREATE USER IF NOT EXISTS '%s'@'%%' IDENTIFIED BY '%s'", username, password)
	if _, err := p.admin.ExecContext(ctx, createUser); err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "create_role")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant user")
	}

	alterUser := fmt.Sprintf("ALTER USER '%s'@'%%' IDENTIFIED BY '%s'", username, password)
	if _, err := p.admin.ExecContext(ctx, alterUser); err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "create_role")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset tenant user password")
	}

	grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO '%s'@'%%'", database, username)
	if _, err := p.admin.ExecContext(ctx, grant); err != nil {
		p.metrics.IncFailure(p.cfg.Driver, "grant")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant tenant privileges")
	}

	return nil
}

func (p *Provisioner) fail(ctx context.Context, id uuid.UUID, stage string, err error) error {
	p.metrics.IncFailure(p.cfg.Driver, stage)
	wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, stage)
	msg := wrapped.Error()
	_ = p.repo.UpdateStatus(ctx, id, enums.MarketplaceStatusFailed, &msg)
	return wrapped
}

// GooseMigrator runs the tenant schema migrations with goose.
type GooseMigrator struct {
	Dir string
}

// Migrate opens the tenant database and applies all pending migrations.
func (g GooseMigrator) Migrate(ctx context.Context, driver, dsn string) (int64, error) {
	dir := g.Dir
	if dir == "" {
		dir = migrate.TenantDir
	}

	client, err := db.Open(driver, dsn, db.PoolSettings{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return 0, err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return 0, err
	}
	return migrate.Up(ctx, sqlDB, driver, dir)
}
