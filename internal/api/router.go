package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"parkease-api-go/internal/api/handlers"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/auth"
)

// Service is everything the HTTP layer needs from the booking engine.
type Service interface {
	handlers.PoolService
	handlers.BookingService
	handlers.Pinger
}

// Deps are the collaborators wired into the router.
type Deps struct {
	Service  Service
	Resolver auth.Resolver
	Limiter  *middleware.LimiterStore
	// Redis is optional; when set, readiness also pings it.
	Redis  handlers.Pinger
	Leader handlers.LeaderChecker
	Logger *zap.Logger
}

// Unauthenticated paths
const (
	healthPath  = "/api/v1/health"
	readyPath   = "/api/v1/ready"
	metricsPath = "/api/v1/metrics"
)

// NewRouter creates a new Chi router with all routes and middleware configured
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = auth.HeaderResolver{}
	}

	r := chi.NewRouter()

	// Apply middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.Authenticate(resolver, logger, healthPath, readyPath, metricsPath))
	if d.Limiter != nil {
		r.Use(middleware.RateLimit(d.Limiter, logger))
	}

	// Initialize handlers
	poolHandler := handlers.NewPoolHandler(d.Service, logger)
	bookingHandler := handlers.NewBookingHandler(d.Service, logger)
	healthHandler := handlers.NewHealthHandler(d.Service, d.Redis, d.Leader, logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health and readiness endpoints
		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/ready", healthHandler.HandleReady)

		// Metrics endpoint
		r.Get("/metrics", promhttp.Handler().ServeHTTP)

		// Pool endpoints
		r.Route("/pools", func(r chi.Router) {
			r.Get("/", poolHandler.List)
			r.Post("/", poolHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", poolHandler.Get)
				r.Put("/", poolHandler.Update)
				r.Delete("/", poolHandler.Delete)
				r.Put("/capacity", poolHandler.ReviseCapacity)
				r.Patch("/active", poolHandler.SetActive)
			})
		})

		// Booking endpoints
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", bookingHandler.List)
			r.Post("/", bookingHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bookingHandler.Get)
				r.Patch("/cancel", bookingHandler.Cancel)
				r.Patch("/complete", bookingHandler.Complete)
			})
		})
	})

	return r
}
