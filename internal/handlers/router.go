package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
)

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
)

// RouteRegistrar adds routes to a mounted group.
type RouteRegistrar func(r chi.Router)

type middlewareChain []func(http.Handler) http.Handler

func (c middlewareChain) applyTo(r chi.Router) {
	for _, mw := range c {
		if mw != nil {
			r.Use(mw)
		}
	}
}

type routerConfig struct {
	timeout time.Duration
	health  *HealthHandlers
	metrics http.Handler
	orders     RouteRegistrar
	promotions RouteRegistrar

	global    middlewareChain
	api       middlewareChain
	order     middlewareChain
	promotion middlewareChain
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface. /healthz, /readyz and /metrics live at
// the root and only see the global middlewares; everything under /api/v1 also
// runs the API chain.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{timeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	cfg.global.applyTo(r)
	r.Use(middleware.Timeout(cfg.timeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotFound, "route_not_found", "no route for "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed",
			fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		cfg.api.applyTo(api)
		mountGroup(api, "/orders", cfg.order, cfg.orders)
		mountGroup(api, "/promotions", cfg.promotion, cfg.promotions)
	})
	return r
}

func mountGroup(api chi.Router, prefix string, mw middlewareChain, reg RouteRegistrar) {
	api.Route(prefix, func(group chi.Router) {
		mw.applyTo(group)
		if reg == nil {
			// Keeps the group answering with a JSON error until routes are wired.
			unwired := notImplemented(prefix)
			group.HandleFunc("/*", unwired)
			group.HandleFunc("/", unwired)
			return
		}
		reg(group)
	})
}

func notImplemented(prefix string) http.HandlerFunc {
	msg := strings.TrimPrefix(prefix, "/") + " routes are not configured"
	return func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotImplemented, "not_implemented", msg)
	}
}

func writeRouteError(w http.ResponseWriter, req *http.Request, status int, code, msg string) {
	httpx.WriteError(req.Context(), w, httpx.NewError(code, msg, status))
}

// WithMiddlewares appends middlewares that run for every request, after the
// request id and real IP are resolved.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

// WithRequestTimeout bounds handler run time. Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

// WithAPIMiddlewares adds middlewares for everything under /api/v1, such as
// authentication.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.api = append(cfg.api, mw...) }
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

// WithOrderMiddlewares adds middlewares for the /orders group only.
func WithOrderMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.order = append(cfg.order, mw...) }
}

// WithPromotionRoutes mounts the promotion management endpoints at
// /api/v1/promotions.
func WithPromotionRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.promotions = reg }
}

func WithPromotionMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.promotion = append(cfg.promotion, mw...) }
}
