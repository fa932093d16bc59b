package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/ecw-bridge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/ecw-bridge/internal/http/middleware"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ECWHandler         *handlers.ECWHandler
	HealthHandler      *handlers.HealthHandler
	MetricsHandler     http.Handler
	APIJWTSecret       string
	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
	CORSMaxAge         time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins: cfg.CORSAllowedOrigins,
			Headers: append(append([]string(nil), httpmiddleware.PortalHeaders...), cfg.CORSAllowedHeaders...),
			MaxAge:  cfg.CORSMaxAge,
		}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		health := cfg.HealthHandler
		if health == nil {
			health = handlers.NewHealthHandler(nil)
		}
		public.Get("/health", health.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.ECWHandler != nil {
		r.Route("/ecw", func(ecw chi.Router) {
			ecw.Use(httpmiddleware.APIJWT(cfg.APIJWTSecret))
			cfg.ECWHandler.Routes(ecw)
		})
	}

	return r
}
