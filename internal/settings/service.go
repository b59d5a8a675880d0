package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/repository"
)

// UpdateRequest is a partial settings update. Absent fields stay unchanged.
type UpdateRequest struct {
	OpenAIAPIKey          *string  `json:"openai_api_key"`
	SemanticScholarAPIKey *string  `json:"semantic_scholar_api_key"`
	CoreAPIKey            *string  `json:"core_api_key"`
	OpenAlexEmail         *string  `json:"openalex_email"`
	EnabledProviders      []string `json:"enabled_providers"`
	ProxyURL              *string  `json:"proxy_url"`
	ProxyEnabled          *bool    `json:"proxy_enabled"`
}

// View is the settings representation returned to clients, with secrets masked.
type View struct {
	ID                    int64    `json:"id"`
	OpenAIAPIKey          *string  `json:"openai_api_key"`
	SemanticScholarAPIKey *string  `json:"semantic_scholar_api_key"`
	CoreAPIKey            *string  `json:"core_api_key"`
	OpenAlexEmail         *string  `json:"openalex_email"`
	EnabledProviders      []string `json:"enabled_providers"`
	ProxyURL              *string  `json:"proxy_url"`
	ProxyEnabled          bool     `json:"proxy_enabled"`
}

// NewView builds the masked representation of s.
func NewView(s *domain.UserSettings) View {
	providers := make([]string, 0, len(s.EnabledSources))
	for _, st := range s.EnabledSources {
		providers = append(providers, string(st))
	}
	return View{
		ID:                    s.ID,
		OpenAIAPIKey:          domain.MaskSecret(s.OpenAIAPIKey),
		SemanticScholarAPIKey: domain.MaskSecret(s.SemanticScholarAPIKey),
		CoreAPIKey:            domain.MaskSecret(s.CoreAPIKey),
		OpenAlexEmail:         optional(s.ContactEmail),
		EnabledProviders:      providers,
		ProxyURL:              optional(s.ProxyURL),
		ProxyEnabled:          s.ProxyEnabled,
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Service reads and updates the stored settings.
type Service struct {
	repo     repository.SettingsRepository
	defaults Defaults
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates a settings service.
func NewService(repo repository.SettingsRepository, defaults Defaults, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		defaults: defaults,
		validate: validator.New(),
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// Get returns the stored settings, creating the row from the defaults on
// first access.
func (s *Service) Get(ctx context.Context) (*domain.UserSettings, error) {
	current, err := s.repo.Get(ctx)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	seed := &domain.UserSettings{
		ID:                    domain.DefaultSettingsID,
		OpenAIAPIKey:          s.defaults.OpenAIAPIKey,
		SemanticScholarAPIKey: s.defaults.SemanticScholarAPIKey,
		CoreAPIKey:            s.defaults.CoreAPIKey,
		ContactEmail:          s.defaults.contactEmail(),
		EnabledSources:        domain.DefaultEnabledSources(),
		ProxyURL:              s.defaults.OutboundProxy,
		ProxyEnabled:          s.defaults.OutboundProxy != "",
	}
	created, err := s.repo.Create(ctx, seed)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("id", created.ID).Msg("created settings from defaults")
	return created, nil
}

// Update applies req to the stored settings.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.UserSettings, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	current.Apply(domain.SettingsUpdate{
		OpenAIAPIKey:          req.OpenAIAPIKey,
		SemanticScholarAPIKey: req.SemanticScholarAPIKey,
		CoreAPIKey:            req.CoreAPIKey,
		ContactEmail:          req.OpenAlexEmail,
		EnabledSources:        req.EnabledProviders,
		ProxyURL:              req.ProxyURL,
		ProxyEnabled:          req.ProxyEnabled,
	})

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Strs("enabled_providers", req.EnabledProviders).
		Bool("proxy_enabled", updated.ProxyEnabled).
		Msg("settings updated")
	return updated, nil
}

// validateRequest checks the formatted fields. Blank values are allowed
// because they clear the field.
func (s *Service) validateRequest(req UpdateRequest) error {
	if req.OpenAlexEmail != nil {
		if v := strings.TrimSpace(*req.OpenAlexEmail); v != "" {
			if err := s.validate.Var(v, "email"); err != nil {
				return domain.NewValidationError("openalex_email", "must be a valid email address")
			}
		}
	}
	if req.ProxyURL != nil {
		if v := strings.TrimSpace(*req.ProxyURL); v != "" {
			if err := s.validate.Var(v, "url"); err != nil {
				return domain.NewValidationError("proxy_url", "must be a valid URL")
			}
		}
	}
	return nil
}
