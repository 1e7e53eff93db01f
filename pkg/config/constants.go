package config

// EnvPrefix is passed to envconfig; each field already carries its full
// MARKETGRID_ tag so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvDBDSN  = "MARKETGRID_DB_DSN"
	EnvDBHost = "MARKETGRID_DB_HOST"
	EnvDBUser = "MARKETGRID_DB_USER"
	EnvDBName = "MARKETGRID_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)
