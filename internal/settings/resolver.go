// Package settings resolves the per-search runtime configuration and
// implements the settings read/update use cases.
package settings

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// Store is the subset of repository.SettingsRepository the resolver needs.
type Store interface {
	Get(ctx context.Context) (*domain.UserSettings, error)
}

// Defaults are the process-wide fallbacks taken from configuration.
type Defaults struct {
	OpenAIAPIKey          string
	SemanticScholarAPIKey string
	CoreAPIKey            string
	ContactEmail          string
	OutboundProxy         string
	EnabledSources        []domain.SourceType
}

func (d Defaults) enabledSources() []domain.SourceType {
	if len(d.EnabledSources) == 0 {
		return domain.DefaultEnabledSources()
	}
	return slices.Clone(d.EnabledSources)
}

func (d Defaults) contactEmail() string {
	if d.ContactEmail == "" {
		return config.DefaultContactEmail
	}
	return d.ContactEmail
}

// runtime returns the configuration used when no settings are stored.
func (d Defaults) runtime() papersources.RuntimeConfig {
	return papersources.RuntimeConfig{
		SemanticScholarAPIKey: d.SemanticScholarAPIKey,
		CoreAPIKey:            d.CoreAPIKey,
		ContactEmail:          d.contactEmail(),
		ProxyURL:              d.OutboundProxy,
		EnabledSources:        d.enabledSources(),
	}
}

// Resolver produces a RuntimeConfig from the stored settings, falling back
// to Defaults. It never fails.
type Resolver struct {
	store    Store
	defaults Defaults
	logger   zerolog.Logger
}

// NewResolver creates a resolver. store may be nil, in which case the
// defaults are always used.
func NewResolver(store Store, defaults Defaults, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		defaults: defaults,
		logger:   logger.With().Str("component", "settings-resolver").Logger(),
	}
}

// Resolve returns the runtime configuration for one search.
func (r *Resolver) Resolve(ctx context.Context) papersources.RuntimeConfig {
	if r.store == nil {
		return r.defaults.runtime()
	}

	s, err := r.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn().Err(err).Msg("settings store unavailable, using defaults")
		}
		return r.defaults.runtime()
	}

	rc := papersources.RuntimeConfig{
		SemanticScholarAPIKey: firstNonEmpty(s.SemanticScholarAPIKey, r.defaults.SemanticScholarAPIKey),
		CoreAPIKey:            firstNonEmpty(s.CoreAPIKey, r.defaults.CoreAPIKey),
		ContactEmail:          firstNonEmpty(s.ContactEmail, r.defaults.contactEmail()),
		EnabledSources:        slices.Clone(s.EnabledSources),
	}
	if len(rc.EnabledSources) == 0 {
		rc.EnabledSources = r.defaults.enabledSources()
	}
	if s.ProxyEnabled && s.ProxyURL != "" {
		rc.ProxyURL = s.ProxyURL
	}
	return rc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
