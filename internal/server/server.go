// Package server assembles the HTTP surface. Feature packages own their
// handlers; this package owns the router, middleware and lifecycle.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/agent"
	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/config"
	"github.com/lifelink/copilot/internal/confirm"
	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/tenant"
)

// Deps are the wired feature components. Nil entries leave their routes
// unregistered, which keeps tests small.
type Deps struct {
	Agent         *agent.Agent
	Confirms      *confirm.Manager
	Conversations *conversation.Store
	Audits        *audit.Store
	Pipeline      *rag.Pipeline
}

// Server is the copilot HTTP server.
type Server struct {
	cfg        config.ServerConfig
	log        *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes registered.
func New(cfg config.ServerConfig, log *zap.Logger, deps Deps) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, log: log}
	s.router = s.buildRouter(deps)
	return s
}

func (s *Server) buildRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenant.HeaderUserID, tenant.HeaderUserRole, tenant.HeaderTenantID, tenant.HeaderSuperAdmin, tenant.HeaderTenantContext},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Everything under /api/v1 requires a resolved identity.
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware)
		if deps.Agent != nil {
			agent.RegisterRoutes(r, deps.Agent, deps.Confirms, deps.Conversations)
		}
		if deps.Pipeline != nil {
			rag.RegisterRoutes(r, deps.Pipeline)
		}
		if deps.Audits != nil {
			audit.RegisterRoutes(r, deps.Audits)
		}
	})

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured address. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info("copilot server listening", zap.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
