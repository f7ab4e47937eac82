package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"scamguard/internal/api/handlers"
	apimiddleware "scamguard/internal/api/middleware"
	"scamguard/internal/config"
	"scamguard/internal/infrastructure/cache"
	"scamguard/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	cache    *cache.RedisCache
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg config.Config, h *handlers.Handlers, c *cache.RedisCache, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		cache:    c,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled {
		router.Use(apimiddleware.RateLimiter(r.cache, r.config.RateLimit))
	}

	// Health checks
	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	router.Route("/api/v1", func(api chi.Router) {
		// Review queue
		api.Route("/flags", func(flags chi.Router) {
			flags.Get("/", r.handlers.Flags.List)
			flags.Get("/{id}", r.handlers.Flags.Get)
			flags.Patch("/{id}/review", r.handlers.Flags.Review)
		})

		// Run history
		api.Route("/runs", func(runs chi.Router) {
			runs.Get("/", r.handlers.Runs.List)
			runs.Get("/{id}", r.handlers.Runs.Get)
		})

		// Nightly reports
		api.Route("/reports", func(reports chi.Router) {
			reports.Get("/", r.handlers.Reports.List)
			reports.Get("/{date}", r.handlers.Reports.Get)
		})

		// Manual scan triggers
		api.Route("/scan", func(scan chi.Router) {
			scan.Post("/periodic", r.handlers.Scan.TriggerScan)
			scan.Post("/nightly", r.handlers.Scan.TriggerNightly)
		})

		// Pattern rule set
		api.Route("/rules", func(rules chi.Router) {
			rules.Get("/", r.handlers.Rules.List)
			rules.Post("/promote", r.handlers.Rules.Promote)
		})

		// Sender blocklist
		api.Route("/blocklist", func(bl chi.Router) {
			bl.Get("/{number}", r.handlers.Blocklist.Check)
			bl.Post("/", r.handlers.Blocklist.Add)
			bl.Delete("/{number}", r.handlers.Blocklist.Remove)
		})
	})

	return router
}
