// Package main provides the entry point for the paper search HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/database"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/library"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/papersources/arxiv"
	"github.com/helixir/paper-search-service/internal/papersources/core"
	"github.com/helixir/paper-search-service/internal/papersources/crossref"
	"github.com/helixir/paper-search-service/internal/papersources/openalex"
	"github.com/helixir/paper-search-service/internal/papersources/semanticscholar"
	"github.com/helixir/paper-search-service/internal/repository"
	"github.com/helixir/paper-search-service/internal/search"
	httpserver "github.com/helixir/paper-search-service/internal/server/http"
	"github.com/helixir/paper-search-service/internal/settings"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-search-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	defaults := settingsDefaults(cfg)

	// The settings store is optional; without it every search uses the
	// configured defaults.
	var (
		db          *database.DB
		store       settings.Store
		settingsSvc httpserver.SettingsService
		health      httpserver.HealthChecker
	)
	if cfg.Database.Enabled {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info().Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			if err := runMigrations(db, cfg.Database.MigrationPath, logger); err != nil {
				return err
			}
		}

		settingsRepo := repository.NewPgSettingsRepository(db)
		store = settingsRepo
		settingsSvc = settings.NewService(settingsRepo, defaults, logger)
		health = db
	} else {
		logger.Warn().Msg("database disabled, settings API unavailable and defaults apply to every search")
	}

	resolver := settings.NewResolver(store, defaults, logger)

	registry := papersources.NewRegistry()
	registerSources(registry, cfg.PaperSources, metrics, logger)

	searchSvc := search.NewService(search.Config{Timeout: cfg.Search.Timeout}, registry, resolver, metrics, logger)

	var publisher httpserver.LibraryPublisher
	libraryPublisher := library.NewPublisher(library.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.LibraryTopic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, metrics, logger)
	defer func() {
		if closeErr := libraryPublisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close library publisher")
		}
	}()
	if libraryPublisher.Enabled() {
		publisher = libraryPublisher
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		CORSMaxAge:      cfg.CORS.MaxAge,
	}
	httpSrv := httpserver.NewServer(httpCfg, searchSvc, settingsSvc, publisher, health, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.ReadTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-search-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down paper-search-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("paper-search-service shutdown complete")
	return nil
}

func runMigrations(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// settingsDefaults maps the environment configuration onto the fallback
// values used when no settings row exists. Unknown source names are skipped.
func settingsDefaults(cfg *config.Config) settings.Defaults {
	var enabled []domain.SourceType
	for _, name := range cfg.Defaults.EnabledSources {
		if st, ok := domain.ParseSourceType(name); ok && domain.IsAdapterSource(st) {
			enabled = append(enabled, st)
		}
	}
	return settings.Defaults{
		OpenAIAPIKey:          cfg.Defaults.OpenAIAPIKey,
		SemanticScholarAPIKey: cfg.PaperSources.SemanticScholar.APIKey,
		CoreAPIKey:            cfg.PaperSources.CORE.APIKey,
		ContactEmail:          cfg.Defaults.ContactEmail,
		OutboundProxy:         cfg.Defaults.OutboundProxy,
		EnabledSources:        enabled,
	}
}

func pagerConfig(c config.PaperSourceConfig) papersources.PagerConfig {
	return papersources.PagerConfig{
		PageSize:   c.PageSize,
		MaxResults: c.MaxResults,
		PageDelay:  c.PageDelay,
	}
}

func retryPolicy(c config.PaperSourceConfig) papersources.RetryPolicy {
	return papersources.RetryPolicy{
		Attempts:  c.RetryAttempts,
		Threshold: c.LowYieldThreshold,
	}
}

// registerSources builds every adapter from configuration. Whether an adapter
// runs for a given search is decided per call by the runtime configuration.
func registerSources(registry *papersources.Registry, cfg config.PaperSourcesConfig, recorder papersources.RequestRecorder, logger zerolog.Logger) {
	registry.Register(semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:   cfg.SemanticScholar.BaseURL,
		Timeout:   cfg.SemanticScholar.Timeout,
		RateLimit: cfg.SemanticScholar.RateLimit,
		BurstSize: cfg.SemanticScholar.BurstSize,
		Pager:     pagerConfig(cfg.SemanticScholar),
		Recorder:  recorder,
	}, nil, logger))

	registry.Register(openalex.New(openalex.Config{
		BaseURL:   cfg.OpenAlex.BaseURL,
		Timeout:   cfg.OpenAlex.Timeout,
		RateLimit: cfg.OpenAlex.RateLimit,
		BurstSize: cfg.OpenAlex.BurstSize,
		Pager:     pagerConfig(cfg.OpenAlex),
		Retry:     retryPolicy(cfg.OpenAlex),
		Recorder:  recorder,
	}, logger))

	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:   cfg.ArXiv.BaseURL,
		Timeout:   cfg.ArXiv.Timeout,
		RateLimit: cfg.ArXiv.RateLimit,
		BurstSize: cfg.ArXiv.BurstSize,
		Pager:     pagerConfig(cfg.ArXiv),
		Retry:     retryPolicy(cfg.ArXiv),
		Recorder:  recorder,
	}, logger))

	registry.Register(crossref.New(crossref.Config{
		BaseURL:   cfg.Crossref.BaseURL,
		Timeout:   cfg.Crossref.Timeout,
		RateLimit: cfg.Crossref.RateLimit,
		BurstSize: cfg.Crossref.BurstSize,
		Pager:     pagerConfig(cfg.Crossref),
		Recorder:  recorder,
	}, logger))

	registry.Register(core.New(core.Config{
		BaseURL:   cfg.CORE.BaseURL,
		Timeout:   cfg.CORE.Timeout,
		RateLimit: cfg.CORE.RateLimit,
		BurstSize: cfg.CORE.BurstSize,
		Pager:     pagerConfig(cfg.CORE),
		Recorder:  recorder,
	}, logger))

	logger.Info().Int("sources", len(registry.AllSources())).Msg("paper sources registered")
}
