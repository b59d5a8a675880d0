// Package httpserver provides the HTTP REST API of the paper search service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/database"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/library"
	"github.com/helixir/paper-search-service/internal/search"
	"github.com/helixir/paper-search-service/internal/settings"
)

// Searcher runs aggregated searches. *search.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, filters domain.SearchFilters) (*search.Response, error)
}

// SettingsService reads and updates the stored settings. *settings.Service satisfies it.
type SettingsService interface {
	Get(ctx context.Context) (*domain.UserSettings, error)
	Update(ctx context.Context, req settings.UpdateRequest) (*domain.UserSettings, error)
}

// LibraryPublisher hands records to the library layer. *library.Publisher satisfies it.
type LibraryPublisher interface {
	Publish(ctx context.Context, paper *domain.Paper, tags string) (*library.ImportRequest, error)
}

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server serves the JSON API on chi.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	searcher   Searcher
	settings   SettingsService
	library    LibraryPublisher
	db         HealthChecker
	validate   *validator.Validate
	cors       cors.Options
	logger     zerolog.Logger
}

// Config carries the listener timeouts and the CORS policy.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	CORSMaxAge      int
}

// NewServer creates a new HTTP server. settingsSvc, publisher and db may be
// nil when the corresponding backend is not configured.
func NewServer(
	cfg Config,
	searcher Searcher,
	settingsSvc SettingsService,
	publisher LibraryPublisher,
	db HealthChecker,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		searcher: searcher,
		settings: settingsSvc,
		library:  publisher,
		db:       db,
		validate: newValidator(),
		cors: cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", correlationIDHeader},
			ExposedHeaders: []string{correlationIDHeader},
			MaxAge:         cfg.CORSMaxAge,
		},
		logger: logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter wires middleware outermost first. CORS runs after logging so
// rejected preflights still show up in the request log.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLoggerMiddleware(s.logger))
	r.Use(cors.Handler(s.cors))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.searchPapers)
		r.Get("/system/settings", s.getSettings)
		r.Put("/system/settings", s.updateSettings)
		r.Post("/library/papers", s.importPaper)
	})

	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving requests until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info().Str("address", ln.Addr().String()).Msg("accepting connections")
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns liveness status. The process is live whenever it can
// answer, so database trouble is reported but does not fail the check.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "database": "disabled"}
	if s.db != nil {
		resp["database"] = s.db.Health(r.Context()).Status
	}
	writeJSON(w, http.StatusOK, resp)
}

// readinessHandler fails with 503 while a configured database is unreachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	status, dbState := http.StatusOK, "disabled"
	if s.db != nil {
		h := s.db.Health(r.Context())
		dbState = h.Status
		if h.Status != "healthy" {
			s.logger.Warn().Str("error", h.Error).Msg("not ready: database unhealthy")
			status = http.StatusServiceUnavailable
		}
	}

	ready := "ready"
	if status != http.StatusOK {
		ready = "not_ready"
	}
	writeJSON(w, status, map[string]string{"status": ready, "database": dbState})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding error cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
