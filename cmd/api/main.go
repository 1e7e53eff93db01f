package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketgrid/marketgrid-backend/api/routes"
	"github.com/marketgrid/marketgrid-backend/internal/cart"
	"github.com/marketgrid/marketgrid-backend/internal/checkout"
	"github.com/marketgrid/marketgrid-backend/internal/kyc"
	"github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/internal/payments"
	"github.com/marketgrid/marketgrid-backend/internal/products"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/internal/vendors"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/env"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/metrics"
	"github.com/marketgrid/marketgrid-backend/pkg/migrate"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
	"github.com/marketgrid/marketgrid-backend/pkg/redis"
	"github.com/marketgrid/marketgrid-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	keychain, err := security.NewKeychain(cfg.Tenancy.EncryptionKey)
	if err != nil {
		logg.Error(context.Background(), "failed to load tenant keychain", err)
		os.Exit(1)
	}

	adminDB, err := db.OpenAdmin(cfg.Tenancy.Driver, cfg.Tenancy.AdminDSN)
	if err != nil {
		logg.Error(context.Background(), "failed to open tenancy admin connection", err)
		os.Exit(1)
	}
	defer func() {
		if err := adminDB.Close(); err != nil {
			logg.Error(context.Background(), "error closing admin connection", err)
		}
	}()

	marketplaceRepo := tenancy.NewRepository(dbClient.DB())
	tenantRegistry := tenancy.NewRegistry(cfg.Tenancy, keychain)
	defer tenantRegistry.Close()

	provisioner, err := tenancy.NewProvisioner(
		adminDB,
		tenancy.GooseMigrator{Dir: cfg.Tenancy.MigrationsDir},
		marketplaceRepo,
		keychain,
		cfg.Tenancy,
		metrics.NewProvisioningMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create provisioner", err)
		os.Exit(1)
	}

	resolver, err := tenancy.NewResolver(marketplaceRepo, tenantRegistry, cfg.Tenancy)
	if err != nil {
		logg.Error(context.Background(), "failed to create tenant resolver", err)
		os.Exit(1)
	}

	events := outbox.NewService(logg)

	marketplaceService, err := tenancy.NewService(
		marketplaceRepo, provisioner, tenantRegistry, dbClient, events, cfg.Tenancy, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace service", err)
		os.Exit(1)
	}

	vendorsRepo := vendors.NewRepository()
	kycService, err := kyc.NewService(
		kyc.NewRepository(dbClient.DB()), marketplaceRepo, marketplaceService, tenantRegistry, vendorsRepo, dbClient, events, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create kyc service", err)
		os.Exit(1)
	}

	productsRepo := products.NewRepository()
	productService, err := products.NewService(productsRepo, vendorsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	cartRepo := cart.NewRepository()
	cartService, err := cart.NewService(cartRepo, productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	networksRepo := payments.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository()

	checkoutService, err := checkout.NewService(
		cartRepo,
		productsRepo,
		ordersRepo,
		networksRepo,
		vendorsRepo,
		events,
		metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		cfg.Payments,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(ordersRepo, productsRepo, networksRepo, events, cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient, resolver,
			marketplaceService, kycService, productService,
			cartService, checkoutService, orderService, networksRepo,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
