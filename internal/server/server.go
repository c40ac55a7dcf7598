// internal/server/server.go

// Package server wires the HTTP API: routing, middleware and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"bookswap/internal/auth"
	"bookswap/internal/books"
	"bookswap/internal/config"
	"bookswap/internal/respond"
	"bookswap/internal/store"
	"bookswap/internal/swaps"
	"bookswap/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Services are the domain services behind the API. They share one store.DB.
type Services struct {
	DB     *store.DB
	Users  users.Service
	Books  books.Service
	Swaps  swaps.Service
	Tokens *auth.TokenManager
}

// NewServices builds every service over db.
func NewServices(cfg *config.Config, db *store.DB) *Services {
	limiter := rate.NewLimiter(rate.Limit(cfg.Auth.RateLimit), cfg.Auth.Burst)
	if cfg.Auth.RateLimit <= 0 {
		limiter = nil
	}

	bookService := books.NewService(db, cfg.Store.BooksFile)
	requests := swaps.NewStore(db, cfg.Store.RequestsFile)
	return &Services{
		DB:     db,
		Users:  users.NewService(db, cfg.Store.UsersFile, limiter),
		Books:  bookService,
		Swaps:  swaps.NewService(db, requests, bookService),
		Tokens: auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL.Duration),
	}
}

type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// New builds the router and the HTTP server around it.
func New(cfg config.ServerConfig, services *Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}
	s.router = s.routes(services)
	s.http = &http.Server{
		Addr:         net.JoinHostPort("", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(services *Services) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument())
	r.Use(allowOrigins(s.cfg.CORSOrigins))
	if s.cfg.RequestTimeout.Duration > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout.Duration))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Message(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Message(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := services.DB.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Health check failed", slog.Any("error", err))
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	gate := auth.Gate(services.Tokens, services.Users)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", auth.NewHandler(services.Users, services.Tokens).Routes(gate))
		r.Mount("/books", books.NewHandler(services.Books, services.Users).Routes(gate))
		r.Mount("/requests", swaps.NewHandler(services.Swaps).Routes(gate))
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", slog.String("address", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}
