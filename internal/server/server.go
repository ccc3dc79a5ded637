// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it decides which URL patterns map to
// which handlers, which middleware runs where, and how the process stops.
// main builds the dependencies (session store, book client, token service)
// and hands them over in Deps; New assembles the router from them.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/handler"
	"github.com/sakif/bookshelf/internal/middleware"
	"github.com/sakif/bookshelf/internal/repository"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Browser  handler.Browser
	Sessions repository.SessionRepository
	Tokens   *auth.TokenService
	// Closer releases the session store on shutdown. Optional.
	Closer io.Closer
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the session store handed to it in Deps.Closer and the
// janitor goroutine sweeping it; both are released in Start on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	deps    Deps
	janitor *Janitor
}

// New creates a Server from a validated config and its dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Browser == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, errors.New("server: browser, sessions and tokens are required")
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		deps:    deps,
		janitor: NewJanitor(deps.Sessions, cfg.Session.IdleTimeout, cfg.Session.SweepInterval, logger),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                      → the page (HTML)
// GET    /static/*              → CSS
// GET    /healthz               → liveness probe (JSON)
// GET    /metrics               → Prometheus exposition
// POST   /session/user          → select a user profile
// POST   /recommendations       → load recommendations
// POST   /modal/open/{id}       → open the detail modal
// POST   /modal/similar/{id}    → switch the modal to a similar book
// POST   /modal/close           → close the modal
// POST   /books/{id}/rate       → rate a book
//
// Middleware executes in the order it's added. RequestID comes first so
// the logger can print it; Recoverer sits inside the logger so a panic is
// still logged as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// Infrastructure routes carry no session.
	fileServer := http.FileServer(http.Dir(s.config.Server.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	healthHandler := handler.NewHealthHandler()
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	pageHandler, err := handler.NewPageHandler(s.config.Server.TemplateDir, s.deps.Browser, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	actionHandler := handler.NewActionHandler(s.deps.Browser, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Session(s.deps.Tokens, auth.CookieOptions{Secure: s.config.Session.CookieSecure}, s.logger))

		r.Get("/", pageHandler.HandleIndex)

		r.Group(func(r chi.Router) {
			if n := s.config.Server.RateLimitRequests; n > 0 {
				r.Use(httprate.LimitByIP(n, s.config.Server.RateLimitWindow))
			}

			r.Post("/session/user", actionHandler.HandleSelectUser)
			r.Post("/recommendations", actionHandler.HandleRecommendations)
			r.Post("/modal/open/{id}", actionHandler.HandleOpenDetail)
			r.Post("/modal/similar/{id}", actionHandler.HandleOpenSimilar)
			r.Post("/modal/close", actionHandler.HandleCloseModal)
			r.Post("/books/{id}/rate", actionHandler.HandleRateBook)
		})
	})

	return nil
}

// Start starts the HTTP server and the janitor, and blocks until the
// process is told to stop.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (ShutdownTimeout)
//  3. Stop the janitor and close the session store
func (s *Server) Start() error {
	defer func() {
		s.janitor.Stop()
		if s.deps.Closer != nil {
			if err := s.deps.Closer.Close(); err != nil {
				s.logger.Error("closing session store", slog.String("error", err.Error()))
			}
		}
	}()

	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	s.janitor.Start()

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("api", s.config.API.BaseURL),
			slog.String("session_store", s.config.Session.Store),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
