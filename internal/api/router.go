package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pandawa-stack/ai-bank-recon/internal/config"
	"github.com/pandawa-stack/ai-bank-recon/internal/reconciliation"
	"github.com/pandawa-stack/ai-bank-recon/internal/storage"
	"github.com/pandawa-stack/ai-bank-recon/internal/worker"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer wires the router around the reconciliation service. store may be
// nil when persistence is disabled.
func NewServer(cfg *config.Config, svc *reconciliation.Service, pool *worker.Pool, store storage.Repository) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		handlers: NewHandlers(svc, pool, store, cfg.Engine),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1/recon", func(r chi.Router) {
		// Auth only guards the API surface; /health stays open.
		if s.config.Server.JWTSecret != "" {
			r.Use(AuthMiddleware(s.config.Server.JWTSecret))
		}

		r.Post("/reconcile", s.handlers.Reconcile)

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.handlers.ListBatches)
			r.Post("/", s.handlers.CreateBatch)
			r.Get("/{id}", s.handlers.GetBatch)
			r.Post("/{id}/run", s.handlers.RunBatch)
			r.Get("/{id}/result", s.handlers.GetBatchResult)
			r.Get("/{id}/exceptions", s.handlers.GetBatchExceptions)
			r.Get("/{id}/audit", s.handlers.GetBatchAudit)
		})

		r.Get("/stats", s.handlers.GetStats)
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}
