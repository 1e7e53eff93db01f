package migrate

import (
	"context"
	"fmt"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
)

// MaybeRunDev applies pending platform migrations on startup, but only in
// dev. Deployed environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() {
		return nil
	}
	if client == nil {
		return fmt.Errorf("database client is required")
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}

	version, err := Up(ctx, sqlDB, cfg.DB.Driver, PlatformDir)
	if err != nil {
		return err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "db_version", version), "dev migrations applied")
	}
	return nil
}
