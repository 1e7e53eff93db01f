package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketgrid/marketgrid-backend/api/controllers"
	"github.com/marketgrid/marketgrid-backend/api/middleware"
	cartsvc "github.com/marketgrid/marketgrid-backend/internal/cart"
	checkoutsvc "github.com/marketgrid/marketgrid-backend/internal/checkout"
	kycsvc "github.com/marketgrid/marketgrid-backend/internal/kyc"
	ordersvc "github.com/marketgrid/marketgrid-backend/internal/orders"
	"github.com/marketgrid/marketgrid-backend/internal/payments"
	productsvc "github.com/marketgrid/marketgrid-backend/internal/products"
	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	pkgredis "github.com/marketgrid/marketgrid-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	resolver *tenancy.Resolver,
	marketplaceService tenancy.Service,
	kycService kycsvc.Service,
	productService productsvc.Service,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	orderService ordersvc.Service,
	networksRepo *payments.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Tenancy.BaseDomain),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Platform operator surface. Runs against the platform database only,
	// so tenant resolution never applies here.
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/marketplaces", func(r chi.Router) {
			r.Post("/", controllers.MarketplaceRegister(marketplaceService, logg))
			r.Get("/", controllers.MarketplaceList(marketplaceService, logg))
			r.Route("/{marketplaceID}", func(r chi.Router) {
				r.Get("/", controllers.MarketplaceGet(marketplaceService, logg))
				r.Post("/suspend", controllers.MarketplaceSuspend(marketplaceService, logg))
				r.Post("/resume", controllers.MarketplaceResume(marketplaceService, logg))
				r.Post("/retry-provisioning", controllers.MarketplaceRetryProvisioning(marketplaceService, logg))
				r.Get("/kyc", controllers.KYCListPending(kycService, logg))
				r.Post("/kyc", controllers.KYCSubmitMarketplace(kycService, logg))
			})
		})

		r.Post("/kyc/{recordID}/decision", controllers.KYCDecide(kycService, logg))
		r.Post("/networks", controllers.NetworkUpsert(networksRepo, logg))
	})

	// Tenant storefront surface. Every route below resolves a marketplace
	// and rides its database handle on the request context.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(resolver, cfg.Tenancy, logg))

		r.Get("/networks", controllers.NetworkList(networksRepo, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.ProductList(productService, logg))
				r.Get("/{productID}", controllers.ProductGet(productService, logg))
				r.With(middleware.RequireRole(string(enums.MemberRoleVendor), logg)).
					Post("/", controllers.ProductCreate(productService, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartService, logg))
				r.Post("/items", controllers.CartAddItem(cartService, logg))
				r.Put("/items/{variantID}", controllers.CartUpdateItem(cartService, logg))
				r.Delete("/items/{variantID}", controllers.CartRemoveItem(cartService, logg))
				r.Put("/coupon", controllers.CartApplyCoupon(cartService, logg))
			})

			r.Post("/checkout", controllers.Checkout(checkoutService, networksRepo, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(orderService, logg))
				r.Get("/{orderID}", controllers.OrderDetail(orderService, logg))
				r.Post("/{orderID}/confirm-payment", controllers.OrderConfirmPayment(orderService, logg))
				r.Post("/{orderID}/cancel", controllers.OrderCancel(orderService, logg))
				r.With(middleware.RequireRole(string(enums.MemberRoleVendor), logg)).
					Post("/items/{itemID}/ship", controllers.OrderShipItem(orderService, logg))
				r.With(middleware.RequireRole(string(enums.MemberRoleVendor), logg)).
					Post("/items/{itemID}/deliver", controllers.OrderDeliverItem(orderService, logg))
			})

			r.Route("/kyc", func(r chi.Router) {
				r.Post("/", controllers.KYCSubmit(kycService, logg))
				r.Get("/status", controllers.KYCStatus(kycService, logg))
			})
		})
	})

	return r
}
