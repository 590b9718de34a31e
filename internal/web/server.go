package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/blendfm/blendfm/internal/db"
	"github.com/blendfm/blendfm/internal/mixes"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ClientID     string
	ClientSecret string
	RedirectURL  string // must match the Spotify app configuration
	DB           *db.DB // nil runs with in-memory sessions and no persistence
	Mixes        *mixes.Service
	Logger       *log.Logger
}

// Server is the HTTP server for the JSON API.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions SessionManager
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = fmt.Sprintf("http://%s/callback", cfg.Addr)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Mixes == nil {
		return nil, fmt.Errorf("mix service is required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		),
	)

	var sessions SessionManager
	if cfg.DB != nil {
		sessions = NewPGSessionStore(cfg.DB)
	} else {
		sessions = NewMemorySessionStore()
	}

	handlers := NewHandlers(auth, sessions, cfg.Mixes, cfg.DB, cfg.Logger)

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		sessions: sessions,
		handlers: handlers,
		logger:   cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // mix runs fetch several playlists
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the API.
func (s *Server) setupRoutes() {
	// Auth routes
	s.router.Get("/auth/login", s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)
	s.router.Post("/auth/logout", s.handlers.Logout)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/me", s.handlers.Me)
		r.Get("/playlists", s.handlers.Playlists)
		r.Post("/mix", s.handlers.Mix)
		r.Post("/mix/preview", s.handlers.MixPreview)
		r.Post("/mix/validate", s.handlers.MixValidate)
		r.Get("/mixes", s.handlers.Mixes)
		r.Post("/mixes/{id}/save", s.handlers.MixSave)
		r.Delete("/mixes/{id}", s.handlers.MixDelete)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://%s", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// sessionPruneInterval is how often expired sessions are swept from a
// database-backed store.
const sessionPruneInterval = time.Hour

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	pruneCtx, cancelPrune := context.WithCancel(context.Background())
	defer cancelPrune()
	if pruner, ok := s.sessions.(SessionPruner); ok {
		go s.pruneSessions(pruneCtx, pruner)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// pruneSessions periodically drops expired sessions until ctx ends.
func (s *Server) pruneSessions(ctx context.Context, pruner SessionPruner) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pruner.PruneExpired(ctx)
			if err != nil {
				s.logger.Warn("pruning expired sessions failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("pruned expired sessions", "count", n)
			}
		}
	}
}
