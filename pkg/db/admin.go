package db

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
)

// OpenAdmin dials the maintenance database the provisioner issues CREATE
// DATABASE against. CREATE DATABASE cannot run inside a transaction, so
// the handle is a bare sql.DB rather than a GORM client.
func OpenAdmin(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("admin DSN is required")
	}
	var driverName string
	switch driver {
	case config.DriverPostgres:
		driverName = "postgres"
	case config.DriverMySQL:
		driverName = "mysql"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening admin connection: %w", err)
	}
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	return conn, nil
}
