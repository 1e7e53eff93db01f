package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Tenancy  TenancyConfig
	Payments PaymentsConfig
	Redis    RedisConfig
	JWT      JWTConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETGRID_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETGRID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETGRID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETGRID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETGRID_SERVICE_KIND" default:"api"`
}

// DBConfig describes the platform store: the database that owns marketplaces,
// platform-level KYC records, and the platform outbox. Tenant databases are
// described by TenancyConfig instead.
type DBConfig struct {
	DSN    string `envconfig:"MARKETGRID_DB_DSN"`
	Driver string `envconfig:"MARKETGRID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETGRID_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETGRID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETGRID_DB_USER"`
	LegacyPassword string `envconfig:"MARKETGRID_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETGRID_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETGRID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETGRID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETGRID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETGRID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETGRID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// TenancyConfig drives tenant resolution and database provisioning.
type TenancyConfig struct {
	// Driver selects the engine tenant databases run on (postgres or mysql).
	Driver string `envconfig:"MARKETGRID_TENANCY_DRIVER" default:"postgres"`

	// AdminDSN points at the maintenance database used to issue CREATE DATABASE.
	AdminDSN string `envconfig:"MARKETGRID_TENANCY_ADMIN_DSN"`

	// Connection parameters recorded onto a marketplace after provisioning.
	Host     string `envconfig:"MARKETGRID_TENANCY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"MARKETGRID_TENANCY_DB_PORT" default:"5432"`
	Username string `envconfig:"MARKETGRID_TENANCY_DB_USER"`
	Password string `envconfig:"MARKETGRID_TENANCY_DB_PASSWORD"`
	SSLMode  string `envconfig:"MARKETGRID_TENANCY_DB_SSLMODE" default:"disable"`

	DatabasePrefix string `envconfig:"MARKETGRID_TENANCY_DB_PREFIX" default:"mg_tenant_"`
	MigrationsDir  string `envconfig:"MARKETGRID_TENANCY_MIGRATIONS_DIR" default:"migrations/tenant"`

	// BaseDomain anchors subdomain tenant resolution (<slug>.<BaseDomain>).
	BaseDomain string `envconfig:"MARKETGRID_TENANCY_BASE_DOMAIN" required:"true"`

	// Header names the override header API clients use instead of a subdomain.
	Header string `envconfig:"MARKETGRID_TENANCY_HEADER" default:"X-Marketplace-Key"`

	// EncryptionKey is the base64-encoded 32-byte key that seals tenant DB
	// credentials at rest.
	EncryptionKey string `envconfig:"MARKETGRID_TENANCY_ENCRYPTION_KEY" required:"true"`

	MaxOpenConns int `envconfig:"MARKETGRID_TENANCY_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns int `envconfig:"MARKETGRID_TENANCY_MAX_IDLE_CONNS" default:"5"`
}

type PaymentsConfig struct {
	DefaultNetwork  string `envconfig:"MARKETGRID_PAYMENTS_DEFAULT_NETWORK" default:"ethereum"`
	USDRateFallback string `envconfig:"MARKETGRID_PAYMENTS_USD_RATE_FALLBACK" default:"2000"`
	OrderPrefix     string `envconfig:"MARKETGRID_PAYMENTS_ORDER_PREFIX" default:"MKT"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETGRID_REDIS_URL"`
	Address      string        `envconfig:"MARKETGRID_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETGRID_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETGRID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETGRID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETGRID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETGRID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETGRID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETGRID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETGRID_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETGRID_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETGRID_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETGRID_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventTopic        string `envconfig:"MARKETGRID_PUBSUB_EVENT_TOPIC" default:"mg-domain-events"`
	NotificationTopic string `envconfig:"MARKETGRID_PUBSUB_NOTIFICATION_TOPIC" default:"mg-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETGRID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETGRID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETGRID_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETGRID_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"MARKETGRID_CRON_LOCK_TTL" default:"2h"`

	// PaymentWindow is how long a pending blockchain order may stay unpaid
	// before the worker expires it and releases its stock.
	PaymentWindow time.Duration `envconfig:"MARKETGRID_CRON_PAYMENT_WINDOW" default:"24h"`

	OutboxRetentionDays int `envconfig:"MARKETGRID_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
