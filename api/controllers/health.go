package controllers

import (
	"net/http"

	"github.com/marketgrid/marketgrid-backend/api/responses"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	pkgerrors "github.com/marketgrid/marketgrid-backend/pkg/errors"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	pkgredis "github.com/marketgrid/marketgrid-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MarketGrid-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness of the platform database and redis. Tenant
// pools are opened lazily, so they are not part of the probe.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pkgredis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MarketGrid-Env", cfg.App.Env)

		checks := map[string]string{}
		failed := false

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				checks["database"] = err.Error()
				failed = true
			} else {
				checks["database"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				checks["redis"] = err.Error()
				failed = true
			} else {
				checks["redis"] = "ok"
			}
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
