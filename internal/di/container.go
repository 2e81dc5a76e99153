package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/savora/api/internal/events"
	"github.com/savora/api/internal/handlers"
	"github.com/savora/api/internal/notifications"
	"github.com/savora/api/internal/payments"
	"github.com/savora/api/internal/platform/auth"
	"github.com/savora/api/internal/platform/config"
	"github.com/savora/api/internal/platform/observability"
	"github.com/savora/api/internal/platform/storage"
	"github.com/savora/api/internal/repositories"
	"github.com/savora/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
	Cart     services.CartService
	Menu     services.MenuService
	Users    services.UserService
}

// Container wires repositories, services, event infrastructure, and the HTTP
// router for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Hub          *events.Hub
	Center       *notifications.Center
	Services     Services
	Router       chi.Router
}

// NewContainer assembles the runtime dependencies. Tests can supply in-memory
// registries; production wiring passes the Firestore-backed one.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, reg repositories.Registry) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerDeps{
		Secret: cfg.Auth.SessionSecret,
		TTL:    cfg.Auth.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	authenticator := auth.NewAuthenticator(sessions)

	hub := events.NewHub(logger.Named("events"))
	center := notifications.NewCenter(logger.Named("notifications"))
	// Every broadcast event also feeds the notification projection.
	publisher := events.Tee{hub, center}

	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		return nil, errors.New("stripe api key is required")
	}
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        serviceLogger(logger.Named("payments")),
		Clock:         time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe provider: %w", err)
	}

	svc, err := buildServices(cfg, logger, reg, provider, publisher, sessions)
	if err != nil {
		return nil, err
	}

	checker := func(ctx context.Context) error {
		health := reg.Health()
		if health == nil {
			return nil
		}
		return health.Check(ctx)
	}
	healthHandlers := handlers.NewHealthHandlers(handlers.HealthHandlersDeps{Checker: checker})

	authHandlers := handlers.NewAuthHandlers(authenticator, svc.Users)
	menuHandlers := handlers.NewMenuHandlers(svc.Menu)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, center)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders)
	adminMenuHandlers := handlers.NewAdminMenuHandlers(authenticator, svc.Menu)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithMenuRoutes(menuHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Route("/orders", adminOrderHandlers.Routes)
			r.Route("/menu", adminMenuHandlers.Routes)
		}),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebSocket(hub.HandleWebSocket),
	)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Repositories: reg,
		Hub:          hub,
		Center:       center,
		Services:     svc,
		Router:       router,
	}, nil
}

// Close releases resources held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, logger *zap.Logger, reg repositories.Registry, provider payments.Provider, publisher events.Publisher, sessions *auth.SessionManager) (Services, error) {
	var svc Services

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:    reg.Users(),
		Sessions: sessions,
		Clock:    time.Now,
		Logger:   serviceLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	menuDeps := services.MenuServiceDeps{
		Menu:        reg.Menu(),
		ImageBucket: cfg.Storage.MenuImagesBucket,
		UploadTTL:   cfg.Storage.UploadURLTTL,
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("menu")),
	}
	if key := strings.TrimSpace(cfg.Storage.SignerKey); key != "" && cfg.Storage.MenuImagesBucket != "" {
		signer, err := storage.NewServiceAccountSignerFromJSON([]byte(key))
		if err != nil {
			return Services{}, fmt.Errorf("build storage signer: %w", err)
		}
		uploads, err := storage.NewClient(signer)
		if err != nil {
			return Services{}, fmt.Errorf("build signed url client: %w", err)
		}
		menuDeps.Uploads = uploads
	}
	menuSvc, err := services.NewMenuService(menuDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build menu service: %w", err)
	}
	svc.Menu = menuSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Users:  reg.Users(),
		Menu:   reg.Menu(),
		Clock:  time.Now,
		Logger: serviceLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             reg.Orders(),
		Menu:               reg.Menu(),
		Checkout:           provider,
		Events:             publisher,
		FrontendOrigin:     cfg.Checkout.FrontendOrigin,
		Currency:           cfg.Checkout.Currency,
		DeliveryFeeCents:   cfg.Checkout.DeliveryFeeCents,
		MinChargeableCents: cfg.Checkout.MinChargeableCents,
		Clock:              time.Now,
		Logger:             serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   reg.Orders(),
		Users:    reg.Users(),
		Provider: provider,
		Events:   publisher,
		Clock:    time.Now,
		Logger:   serviceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	return svc, nil
}

// serviceLogger adapts a zap logger to the event-and-fields shape service
// dependencies expect.
func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
