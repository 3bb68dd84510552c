package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	httpmiddleware "github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// RouteRegistrar mounts a module's endpoints on a clinic-scoped router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	StaffAuthSecret    string
	CORSAllowedOrigins []string
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter

	// HealthChecks are reported by /health; any failure answers 503.
	HealthChecks map[string]HealthCheck

	// Clinic-scoped modules, mounted under /api/v1/clinics/{clinicID}.
	// Nil entries are skipped.
	Modules []RouteRegistrar
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1/clinics/{clinicID}", func(clinic chi.Router) {
		clinic.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
		clinic.Use(httpmiddleware.ClinicScope)
		if cfg.RateLimiter != nil {
			clinic.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		for _, m := range cfg.Modules {
			if m != nil {
				m.RegisterRoutes(clinic)
			}
		}
	})

	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.WriteJSON(w, status, map[string]any{"status": overall, "dependencies": deps})
	}
}
