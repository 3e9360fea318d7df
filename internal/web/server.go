package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/markrhq/markr/internal/assistant"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/notify"
	"github.com/markrhq/markr/internal/report"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/web/middleware"
)

// Dependencies carries the services and stores the API surfaces. The
// caller wires them once at startup.
type Dependencies struct {
	Roster    store.RosterStore
	Directory store.DirectoryStore
	Tokens    store.TokenStore

	Manager   *capture.Manager
	Pipeline  *capture.Pipeline
	Committer *capture.Committer
	Detector  capture.Detector
	Reports   *report.Service
	Notify    *notify.Service
	Assistant assistant.Provider // nil when not configured
}

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	deps           Dependencies
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, port int, host string, deps Dependencies) *Server {
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(cfg.Server.SessionSecret, deps.Tokens)

	s := &Server{
		config:         cfg,
		router:         r,
		deps:           deps,
		sessionManager: sessionManager,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Set up routes
	s.setupRoutes(sessionManager)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // long timeout for photo uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
