package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/savora/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	auth          RouteRegistrar
	menu          RouteRegistrar
	cart          RouteRegistrar
	orders        RouteRegistrar
	notifications RouteRegistrar
	admin         RouteRegistrar
	webhooks      RouteRegistrar

	websocket http.HandlerFunc
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers(HealthHandlersDeps{})
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	if cfg.websocket != nil {
		// Mounted outside the API group so the request timeout middleware
		// does not kill long-lived connections.
		r.Get("/ws", cfg.websocket)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		api.Use(middleware.Timeout(defaultTimeout))

		mount := func(path string, registrar RouteRegistrar, name string) {
			api.Route(path, func(group chi.Router) {
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/auth", cfg.auth, "auth")
		mount("/menu", cfg.menu, "menu")
		mount("/cart", cfg.cart, "cart")
		mount("/orders", cfg.orders, "orders")
		mount("/notifications", cfg.notifications, "notifications")
		mount("/admin", cfg.admin, "admin")
		mount("/webhooks", cfg.webhooks, "webhooks")
	})

	return r
}

func registerNotImplemented(r chi.Router, name string) {
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes are not configured", name), http.StatusNotImplemented))
	})
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAuthRoutes mounts the registration and login endpoints.
func WithAuthRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.auth = registrar }
}

// WithMenuRoutes mounts the public menu endpoints.
func WithMenuRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.menu = registrar }
}

// WithCartRoutes mounts the authenticated cart endpoints.
func WithCartRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.cart = registrar }
}

// WithOrderRoutes mounts the customer order endpoints.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = registrar }
}

// WithNotificationRoutes mounts the role-scoped notification endpoints.
func WithNotificationRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.notifications = registrar }
}

// WithAdminRoutes mounts the staff dashboard endpoints.
func WithAdminRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = registrar }
}

// WithWebhookRoutes mounts the signature-verified PSP callbacks.
func WithWebhookRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.webhooks = registrar }
}

// WithWebSocket mounts the event stream upgrade endpoint at /ws.
func WithWebSocket(handler http.HandlerFunc) Option {
	return func(cfg *routerConfig) { cfg.websocket = handler }
}
