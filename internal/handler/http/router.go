package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ratewatch/ratewatch/internal/broadcast"
	"github.com/ratewatch/ratewatch/internal/service"
	"github.com/ratewatch/ratewatch/pkg/health"
	"github.com/ratewatch/ratewatch/pkg/middleware"
)

// RouterConfig holds the knobs the router needs beyond its handlers.
type RouterConfig struct {
	CORS          CORSConfig
	AuthRateRPS   int
	AuthRateBurst int
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(
	authService *service.AuthService,
	currencyService *service.CurrencyService,
	hub *broadcast.Hub,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("ratewatch"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(authService, logger)
	currencyHandler := NewCurrencyHandler(currencyService, logger)
	eventsHandler := NewEventsHandler(hub, logger)

	authRateLimit := middleware.RateLimit(cfg.AuthRateRPS, cfg.AuthRateBurst, logger)

	// Public endpoints: registration and login. Per-IP rate limiting guards
	// the bcrypt and throttle paths against brute force.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.With(authRateLimit).Post("/login", authHandler.Login)
		r.With(Auth(authService)).Post("/logout", authHandler.Logout)
	})

	r.With(ContentTypeJSON, authRateLimit).Post("/api/v1/users", authHandler.Register)

	// Currency record endpoints (auth required)
	r.Route("/api/v1/currencies", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(Auth(authService))

		r.Get("/", currencyHandler.List)
		r.Post("/", currencyHandler.Create)
		r.Put("/{id}", currencyHandler.Update)
		r.Delete("/{id}", currencyHandler.Delete)
	})

	// Broadcast stream (auth required)
	r.With(Auth(authService)).Get("/api/v1/events", eventsHandler.Stream)

	return r
}
