/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request, echoed in logs
  2. RealIP:      Client address behind a proxy
  3. Logger:      slog request line
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. Metrics:     Prometheus request counters (when configured)
  6. CORS:        Cross-origin requests for the web client

ROUTE GROUPS:
  /api/auth/register, /api/auth/login   public
  /api/catalog                          public
  /api/scenarios                        public, development only
  /api/*  (everything else)             bearer token required
  /healthz, /metrics                    operational

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authenticator and request logger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ynaut/reward-ledger/metrics"
)

// RouterConfig carries the optional router dependencies.
type RouterConfig struct {
	Logger  *slog.Logger
	CORS    cors.Options
	Metrics *metrics.Metrics

	// Scenarios mounts the demo scenario loaders.
	Scenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = h.logger
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Instrument)
	}
	r.Use(cors.Handler(cfg.CORS))

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/catalog", h.Catalog)

		if cfg.Scenarios {
			r.Get("/scenarios", h.ListScenarios)
			r.Post("/scenarios/load", h.LoadScenario)
		}

		r.Group(func(r chi.Router) {
			r.Use(Authenticator(h.auth))

			r.Post("/auth/logout", h.Logout)

			r.Get("/me", h.Me)
			r.Get("/me/transactions", h.Transactions)
			r.Get("/me/purchases", h.Purchases)

			r.Post("/likes", h.ToggleLike)
			r.Post("/comments", h.CreateComment)
			r.Post("/posts", h.CreatePost)
			r.Post("/stories", h.CreateStory)
			r.Post("/stories/{id}/views", h.ViewStory)
			r.Post("/channels", h.CreateChannel)
			r.Post("/channels/{id}/subscription", h.ToggleSubscription)

			r.Post("/purchases", h.Purchase)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	return r
}
