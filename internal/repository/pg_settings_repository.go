package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Compile-time interface verification.
var _ SettingsRepository = (*PgSettingsRepository)(nil)

// settingsColumns is the select list shared by every settings query.
// Nullable text columns are coalesced so they scan into plain strings.
const settingsColumns = `id,
		COALESCE(openai_api_key, ''),
		COALESCE(semantic_scholar_api_key, ''),
		COALESCE(core_api_key, ''),
		COALESCE(openalex_email, ''),
		enabled_providers,
		COALESCE(proxy_url, ''),
		proxy_enabled,
		created_at,
		updated_at`

// PgSettingsRepository is a PostgreSQL implementation of SettingsRepository.
type PgSettingsRepository struct {
	db DBTX
}

// NewPgSettingsRepository creates a new PostgreSQL settings repository.
func NewPgSettingsRepository(db DBTX) *PgSettingsRepository {
	return &PgSettingsRepository{db: db}
}

// Get returns the settings row with the lowest id.
func (r *PgSettingsRepository) Get(ctx context.Context) (*domain.UserSettings, error) {
	query := `SELECT ` + settingsColumns + `
		FROM user_settings
		ORDER BY id ASC
		LIMIT 1`

	s, err := scanSettings(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user_settings", "first")
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return s, nil
}

// Create inserts s, or returns the existing row with the same id.
// Uses INSERT...ON CONFLICT DO UPDATE so the stored row is always returned in one roundtrip.
func (r *PgSettingsRepository) Create(ctx context.Context, s *domain.UserSettings) (*domain.UserSettings, error) {
	id := s.ID
	if id == 0 {
		id = domain.DefaultSettingsID
	}

	providers, err := marshalSources(s.EnabledSources)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO user_settings (
			id, openai_api_key, semantic_scholar_api_key, core_api_key, openalex_email,
			enabled_providers, proxy_url, proxy_enabled, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET id = user_settings.id
		RETURNING ` + settingsColumns

	stored, err := scanSettings(r.db.QueryRow(ctx, query,
		id,
		s.OpenAIAPIKey,
		s.SemanticScholarAPIKey,
		s.CoreAPIKey,
		s.ContactEmail,
		providers,
		s.ProxyURL,
		s.ProxyEnabled,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}

	return stored, nil
}

// Update overwrites the row identified by s.ID.
func (r *PgSettingsRepository) Update(ctx context.Context, s *domain.UserSettings) (*domain.UserSettings, error) {
	providers, err := marshalSources(s.EnabledSources)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE user_settings SET
			openai_api_key = NULLIF($2, ''),
			semantic_scholar_api_key = NULLIF($3, ''),
			core_api_key = NULLIF($4, ''),
			openalex_email = NULLIF($5, ''),
			enabled_providers = $6,
			proxy_url = NULLIF($7, ''),
			proxy_enabled = $8,
			updated_at = $9
		WHERE id = $1
		RETURNING ` + settingsColumns

	stored, err := scanSettings(r.db.QueryRow(ctx, query,
		s.ID,
		s.OpenAIAPIKey,
		s.SemanticScholarAPIKey,
		s.CoreAPIKey,
		s.ContactEmail,
		providers,
		s.ProxyURL,
		s.ProxyEnabled,
		time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user_settings", strconv.FormatInt(s.ID, 10))
		}
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	return stored, nil
}

// scanSettings scans one settings row. Stored provider names that are no
// longer known are dropped.
func scanSettings(row pgx.Row) (*domain.UserSettings, error) {
	var (
		s         domain.UserSettings
		providers []byte
	)
	err := row.Scan(
		&s.ID,
		&s.OpenAIAPIKey,
		&s.SemanticScholarAPIKey,
		&s.CoreAPIKey,
		&s.ContactEmail,
		&providers,
		&s.ProxyURL,
		&s.ProxyEnabled,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var names []string
	if len(providers) > 0 {
		if err := json.Unmarshal(providers, &names); err != nil {
			return nil, fmt.Errorf("failed to decode enabled_providers: %w", err)
		}
	}
	s.EnabledSources = make([]domain.SourceType, 0, len(names))
	for _, name := range names {
		if st, ok := domain.ParseSourceType(name); ok && domain.IsAdapterSource(st) {
			s.EnabledSources = append(s.EnabledSources, st)
		}
	}

	return &s, nil
}

func marshalSources(sources []domain.SourceType) ([]byte, error) {
	if sources == nil {
		sources = []domain.SourceType{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enabled_providers: %w", err)
	}
	return data, nil
}
