package statusapi

import (
	"log/slog"
	"net/http"
	"robotfleet/internal/health"
	"robotfleet/internal/observability"
	"robotfleet/internal/session"

	"github.com/go-chi/chi/v5"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Session       *session.Session
	HealthChecker *health.Checker
	Metrics       *observability.Metrics // optional
	Stream        *Hub                   // optional; /v1/stream is not mounted without it
	APIKey        string
	Logger        *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.With("component", "statusapi")
	}
	handler := NewHandler(cfg.Session, cfg.HealthChecker, logger)

	r := chi.NewRouter()

	// Middleware chain (order matters: outermost first)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())
	r.Use(ContentTypeMiddleware())

	// Health check endpoints (liveness/readiness probes) - no auth required
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Route("/v1", func(r chi.Router) {
		// Reads - no auth, the view renders these
		r.Get("/positions", handler.Positions)
		r.Get("/state", handler.State)
		if cfg.Stream != nil {
			r.Get("/stream", cfg.Stream.ServeHTTP)
		}

		// Commands - auth required
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.APIKey))
			r.Post("/move", handler.Move)
			r.Post("/reset", handler.Reset)
			r.Post("/auto/start", handler.StartAuto)
			r.Post("/auto/stop", handler.StopAuto)
			r.Post("/auto/toggle", handler.ToggleAuto)
			r.Post("/apply", handler.Apply)
			r.Put("/polling", handler.Polling)
		})
	})

	return r
}
