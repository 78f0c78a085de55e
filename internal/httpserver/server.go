// Package httpserver exposes the REST and SSE surface of the sales
// analytics backend.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope/internal/analysis"
	"github.com/salescope/salescope/internal/auth"
	"github.com/salescope/salescope/internal/health"
	"github.com/salescope/salescope/internal/version"
	"github.com/salescope/salescope/internal/warehouse"
)

// Server wires middleware, route handlers, and their collaborators.
type Server struct {
	users          *warehouse.Store
	data           *warehouse.Store
	analysis       *analysis.Service
	relay          *analysis.Relay
	auth           *auth.Manager
	health         *health.Checker
	allowedOrigins []string
	log            zerolog.Logger
}

// Config carries the handler collaborators.
type Config struct {
	Warehouse      *warehouse.Store
	Analysis       *analysis.Service
	Relay          *analysis.Relay
	Auth           *auth.Manager
	Health         *health.Checker
	AllowedOrigins []string
}

// New creates a Server.
func New(cfg Config, log zerolog.Logger) *Server {
	return &Server{
		users:          cfg.Warehouse,
		data:           cfg.Warehouse,
		analysis:       cfg.Analysis,
		relay:          cfg.Relay,
		auth:           cfg.Auth,
		health:         cfg.Health,
		allowedOrigins: cfg.AllowedOrigins,
		log:            log,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)
		api.Group(func(private chi.Router) {
			private.Use(s.requireAuth)
			private.Post("/auth/register", s.handleRegister)
			private.Get("/auth/profile", s.handleProfile)
			private.Put("/auth/change-password", s.handleChangePassword)

			private.Get("/data/categories", s.handleCategories)
			private.Get("/data/channels", s.handleChannels)
			private.Get("/data/metrics", s.handleMetrics)
			private.Get("/data/campaigns", s.handleCampaigns)
			private.Get("/data/dashboard", s.handleDashboard)

			private.Post("/analysis/create", s.handleCreateAnalysis)
			private.Get("/analysis/history", s.handleAnalysisHistory)
			private.Post("/analysis/stream", s.handleStreamPost)
			private.Get("/analysis/stream", s.handleStreamGet)
			private.Get("/analysis/{reportID}", s.handleGetAnalysis)
			private.Delete("/analysis/{reportID}", s.handleDeleteAnalysis)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"version": version.Info(),
	}
	if s.health == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	results, healthy := s.health.Run(r.Context())
	payload["components"] = results
	status := http.StatusOK
	if !healthy {
		payload["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
