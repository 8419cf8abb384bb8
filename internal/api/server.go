package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finmatter/kestrel/internal/catalog"
	"github.com/finmatter/kestrel/internal/categorize"
	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rewards.Engine, catalogSvc *catalog.Service, categorizer *categorize.Categorizer, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, catalogSvc, categorizer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no user required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (user required)
	router.Route("/", func(r chi.Router) {
		r.Use(UserMiddleware)

		// Reward computation and comparison
		r.Post("/rewards/compute", handler.ComputeRewards)
		r.Get("/rewards/summary", handler.GetRewardSummary)
		r.Post("/optimize/rewards", handler.OptimizeRewards)
		r.Post("/recommend/cards", handler.RecommendCards)

		// Rule set management
		r.Get("/rule-sets", handler.ListRuleSets)
		r.Get("/rule-sets/{cardId}", handler.GetRuleSet)
		r.Put("/rule-sets/{cardId}", handler.PutRuleSet)

		// Card catalog
		r.Get("/catalog", handler.ListCatalog)
		r.Post("/catalog", handler.SaveCatalogVariant)
		r.Get("/catalog/{id}", handler.GetCatalogVariant)
		r.Delete("/catalog/{id}", handler.DeleteCatalogVariant)

		// Transactions
		r.Post("/transactions", handler.IngestTransactions)
		r.Get("/transactions", handler.ListTransactions)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
