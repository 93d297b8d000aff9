// Package server implements the Reader HTTP surface: GET /today,
// GET /{day}, and GET /{day}/{headline-slug}, each returning the Reader
// Selector's assembled front page as JSON.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"subvertnews/internal/config"
	"subvertnews/internal/logger"
	"subvertnews/internal/reader"
)

// Server is the Reader HTTP surface.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	reader     *reader.Reader
	config     config.Server
	log        *slog.Logger
}

// New builds a Reader HTTP server backed by r.
func New(r *reader.Reader, cfg config.Server) *Server {
	log := logger.Get()

	s := &Server{
		router: chi.NewRouter(),
		reader: r,
		config: cfg,
		log:    log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.config.CORSOpen {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	s.router.Use(noCache)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/today", s.handleToday)
	s.router.Get("/{day}", s.handleDay)
	s.router.Get("/{day}/{headlineSlug}", s.handleDayHeadline)
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.log.Info("starting reader server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down reader server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the chi router, useful for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
