// Package server provides the HTTP server and routing for Valora.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/valora-app/valora/internal/database"
	"github.com/valora-app/valora/internal/fx"
	"github.com/valora-app/valora/internal/reconciliation"
	"github.com/valora-app/valora/internal/refresh"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	ConfigDB  *database.DB
	HistoryDB *database.DB
	CacheDB   *database.DB
	LedgerDB  *database.DB

	RefreshHandlers        *refresh.Handlers
	FxHandlers             *fx.Handlers
	ReconciliationHandlers *reconciliation.Handlers
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DataDir, []*database.DB{
			cfg.ConfigDB, cfg.HistoryDB, cfg.CacheDB, cfg.LedgerDB,
		}),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	allowedOrigins := []string{"http://localhost:*", "http://127.0.0.1:*"}
	if devMode {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes mounts module routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.systemHandlers.Health)
	s.router.Get("/api/system/status", s.systemHandlers.Status)

	cfg.RefreshHandlers.RegisterRoutes(s.router)
	cfg.FxHandlers.RegisterRoutes(s.router)
	cfg.ReconciliationHandlers.RegisterRoutes(s.router)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
