// Package server wires the application together: database, services,
// handlers, middleware and routes. It is the composition root; main.go
// only loads configuration and calls New + Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mbriand/grimoire/internal/auth"
	"github.com/mbriand/grimoire/internal/config"
	"github.com/mbriand/grimoire/internal/handler"
	"github.com/mbriand/grimoire/internal/image"
	"github.com/mbriand/grimoire/internal/middleware"
	sqliteRepo "github.com/mbriand/grimoire/internal/repository/sqlite"
	"github.com/mbriand/grimoire/internal/service"
	"github.com/mbriand/grimoire/internal/validate"
)

// Server owns the router and the resources that need closing on
// shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	images *image.Store
}

// New assembles the full dependency chain: database, image store,
// token and password services, the business services and finally the
// handlers and routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	images, err := image.NewStore(cfg.Image.Dir, cfg.Image.MaxWidth, cfg.Image.Quality, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating image store: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Hour)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)
	validator := validate.New()

	authSvc := service.NewAuthService(db, tokens, passwords, validator, logger)
	bookSvc := service.NewBookService(db, images, validator, cfg.PublicBaseURL(), logger)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		images: images,
	}
	s.setupRoutes(
		handler.NewAuthHandler(authSvc, logger),
		handler.NewBookHandler(bookSvc, cfg.Image.MaxUploadBytes, logger),
		tokens,
	)
	return s, nil
}

// setupRoutes registers the global middleware and the route table.
//
// Middleware order matters: RequestID and RealIP first so the logger
// sees them, Recoverer before the handlers so a panic becomes a 500.
func (s *Server) setupRoutes(authH *handler.AuthHandler, bookH *handler.BookHandler, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authH.HandleSignup)
		r.Post("/auth/login", authH.HandleLogin)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", bookH.HandleList)
			// bestrating must be registered before {id} so chi does
			// not treat it as a book ID.
			r.Get("/bestrating", bookH.HandleBestRated)
			r.Get("/{id}", bookH.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", bookH.HandleCreate)
				r.Put("/{id}", bookH.HandleUpdate)
				r.Delete("/{id}", bookH.HandleDelete)
				r.Post("/{id}/rating", bookH.HandleRate)
			})
		})
	})

	// Cover images are served straight from disk.
	fileServer := http.FileServer(http.Dir(s.images.Dir()))
	s.router.Handle("/images/*", http.StripPrefix("/images/", fileServer))
}

// Start runs the HTTP server until SIGINT or SIGTERM, then drains
// in-flight requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.cfg.DB.Path),
			slog.String("images", s.images.Dir()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
