package tenancy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
)

var (
	identifierRe    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	nonIdentifierRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// databaseNameFor derives the tenant database name from the marketplace
// slug. Every run of non-alphanumeric characters collapses to a single
// underscore, so distinct slugs can map to the same name; slug uniqueness
// upstream keeps that from colliding in practice.
func databaseNameFor(prefix, slug string) (string, error) {
	name := prefix + nonIdentifierRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(slug)), "_")
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("tenancy: invalid database name %q", name)
	}
	return name, nil
}

// quoteIdentifier wraps a validated identifier for DDL statements.
func quoteIdentifier(driver, name string) string {
	if driver == config.DriverMySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// buildDSN renders the driver-specific connection string for a tenant.
func buildDSN(conn *models.TenantConnection, password string) (string, error) {
	if conn == nil {
		return "", fmt.Errorf("tenancy: connection is required")
	}

	switch conn.Driver {
	case config.DriverPostgres:
		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(conn.Username, password),
			Host:   fmt.Sprintf("%s:%d", conn.Host, conn.Port),
			Path:   conn.DatabaseName,
		}
		q := u.Query()
		q.Set("sslmode", conn.SSLMode)
		u.RawQuery = q.Encode()
		return u.String(), nil

	case config.DriverMySQL:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			conn.Username, password, conn.Host, conn.Port, conn.DatabaseName,
		), nil

	default:
		return "", fmt.Errorf("tenancy: unsupported driver %q", conn.Driver)
	}
}
