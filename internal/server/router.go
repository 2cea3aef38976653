package server

import (
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Repos      Repositories
	Gateway    payment.Gateway
	Dispatcher notify.Dispatcher
	// Redis backs rate limiting; nil disables it.
	Redis *redis.Client
	// Health reports backing store status on /health; nil reports ok.
	Health func() map[string]string
}

// Services are the application services wired from Deps.
type Services struct {
	Inventory service.InventoryService
	Carts     service.CartService
	Checkout  service.CheckoutService
	Orders    service.OrderService
	Users     service.UserService
	Addresses service.AddressService
	Catalog   service.CatalogService
}

// NewServices wires the services over the repositories, gateway and dispatcher.
func NewServices(d Deps) Services {
	cfg, repos := d.Config, d.Repos
	pricing := service.NewPricingEngine(cfg.Checkout.TaxRate, cfg.Checkout.ShippingCost)

	inventory := service.NewInventoryService(repos.Inventory, repos.Products, repos.Tx, d.Dispatcher,
		logger.Component(d.Logger, "inventory"))
	carts := service.NewCartService(repos.Carts, repos.Products, inventory, pricing, repos.Tx,
		logger.Component(d.Logger, "cart"))

	return Services{
		Inventory: inventory,
		Carts:     carts,
		Checkout: service.NewCheckoutService(service.CheckoutDeps{
			Carts:      repos.Carts,
			Orders:     repos.Orders,
			Addresses:  repos.Addresses,
			Inventory:  inventory,
			Pricing:    pricing,
			Gateway:    d.Gateway,
			Tx:         repos.Tx,
			Dispatcher: d.Dispatcher,
			Config: service.CheckoutConfig{
				Currency:        cfg.Payments.Currency,
				AmountTolerance: cfg.Checkout.AmountTolerance,
				GatewayTimeout:  cfg.Payments.GatewayTimeout,
			},
			Logger: logger.Component(d.Logger, "checkout"),
		}),
		Orders: service.NewOrderService(service.OrderDeps{
			Orders:         repos.Orders,
			Inventory:      inventory,
			Gateway:        d.Gateway,
			Tx:             repos.Tx,
			Dispatcher:     d.Dispatcher,
			GatewayTimeout: cfg.Payments.GatewayTimeout,
			Logger:         logger.Component(d.Logger, "orders"),
		}),
		Users: service.NewUserService(repos.Users, repos.RefreshTokens, carts, service.TokenConfig{
			Secret:        cfg.JWT.Secret,
			AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
			RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
		}, logger.Component(d.Logger, "users")),
		Addresses: service.NewAddressService(repos.Addresses),
		Catalog:   service.NewCatalogService(repos.Products, repos.Categories),
	}
}

// NewRouter builds the chi router with the middleware stack and every route.
func NewRouter(d Deps, svc Services) http.Handler {
	cfg, log := d.Config, d.Logger

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(custommiddleware.ErrorHandlingMiddleware(log))
	router.Use(custommiddleware.TraceMiddleware)
	router.Use(custommiddleware.LoggingMiddleware(log))
	router.Use(middleware.Compress(5, "application/json"))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(custommiddleware.SessionMiddleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if d.Health != nil {
			status = d.Health()
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, status)
	})

	guards := transport.Guards{
		Auth:     custommiddleware.AuthMiddleware(cfg.JWT.Secret, log),
		Optional: custommiddleware.OptionalAuth(cfg.JWT.Secret, log),
		Admin:    custommiddleware.RequireAdmin(log),
	}

	// Webhooks are signed by the gateway and skip the rate limiter.
	transport.NewWebhookHandler(svc.Orders, logger.Component(log, "webhook")).RegisterRoutes(router)

	router.Group(func(r chi.Router) {
		if d.Redis != nil && cfg.RateLimit.Enabled {
			r.Use(custommiddleware.RateLimitMiddleware(d.Redis, custommiddleware.RateLimitConfig{
				RequestsPerWindow: cfg.RateLimit.Requests,
				Window:            cfg.RateLimit.Window,
				KeyPrefix:         "storefront:ratelimit",
			}, log))
		}

		transport.NewUserHandler(svc.Users, log).RegisterRoutes(r, guards)
		transport.NewCatalogHandler(svc.Catalog, log).RegisterRoutes(r)
		transport.NewCartHandler(svc.Carts, log).RegisterRoutes(r, guards)
		transport.NewCheckoutHandler(svc.Checkout, log).RegisterRoutes(r, guards)
		transport.NewOrderHandler(svc.Orders, log).RegisterRoutes(r, guards)
		transport.NewAddressHandler(svc.Addresses, log).RegisterRoutes(r, guards)
		transport.NewAdminHandler(svc.Orders, svc.Inventory, log).RegisterRoutes(r, guards)
	})

	return router
}
