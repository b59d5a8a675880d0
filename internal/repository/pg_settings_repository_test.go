package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

var settingsRowColumns = []string{
	"id", "openai_api_key", "semantic_scholar_api_key", "core_api_key", "openalex_email",
	"enabled_providers", "proxy_url", "proxy_enabled", "created_at", "updated_at",
}

func TestPgSettingsRepository_Get(t *testing.T) {
	t.Run("returns the first row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery(`SELECT id, .* FROM user_settings ORDER BY id ASC LIMIT 1`).
			WillReturnRows(pgxmock.NewRows(settingsRowColumns).
				AddRow(int64(1), "sk-abc", "", "core-key", "me@example.com",
					[]byte(`["arxiv","CORE","pubmed"]`), "http://proxy:3128", true, now, now))

		s, err := repo.Get(context.Background())
		require.NoError(t, err)

		assert.Equal(t, int64(1), s.ID)
		assert.Equal(t, "sk-abc", s.OpenAIAPIKey)
		assert.Equal(t, "", s.SemanticScholarAPIKey)
		assert.Equal(t, "core-key", s.CoreAPIKey)
		assert.Equal(t, "me@example.com", s.ContactEmail)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeCORE}, s.EnabledSources)
		assert.Equal(t, "http://proxy:3128", s.ProxyURL)
		assert.True(t, s.ProxyEnabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when the table is empty", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)

		mock.ExpectQuery(`SELECT id, .* FROM user_settings`).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(context.Background())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		dbErr := errors.New("connection reset")

		mock.ExpectQuery(`SELECT id, .* FROM user_settings`).
			WillReturnError(dbErr)

		_, err = repo.Get(context.Background())
		assert.ErrorIs(t, err, dbErr)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("rejects corrupt provider json", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery(`SELECT id, .* FROM user_settings`).
			WillReturnRows(pgxmock.NewRows(settingsRowColumns).
				AddRow(int64(1), "", "", "", "", []byte(`{not json`), "", false, now, now))

		_, err = repo.Get(context.Background())
		assert.Error(t, err)
	})
}

func TestPgSettingsRepository_Create(t *testing.T) {
	t.Run("inserts with the default id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery(`INSERT INTO user_settings`).
			WithArgs(int64(1), "", "s2-key", "", "athena@example.com",
				[]byte(`["semantic","openalex"]`), "", false, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(settingsRowColumns).
				AddRow(int64(1), "", "s2-key", "", "athena@example.com",
					[]byte(`["semantic","openalex"]`), "", false, now, now))

		s, err := repo.Create(context.Background(), &domain.UserSettings{
			SemanticScholarAPIKey: "s2-key",
			ContactEmail:          "athena@example.com",
			EnabledSources:        []domain.SourceType{domain.SourceTypeSemantic, domain.SourceTypeOpenAlex},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1), s.ID)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeSemantic, domain.SourceTypeOpenAlex}, s.EnabledSources)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil providers are stored as an empty list", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery(`INSERT INTO user_settings`).
			WithArgs(int64(7), "", "", "", "", []byte(`[]`), "", false, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(settingsRowColumns).
				AddRow(int64(7), "", "", "", "", []byte(`[]`), "", false, now, now))

		s, err := repo.Create(context.Background(), &domain.UserSettings{ID: 7})
		require.NoError(t, err)
		assert.Empty(t, s.EnabledSources)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgSettingsRepository_Update(t *testing.T) {
	t.Run("writes every column", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery(`UPDATE user_settings SET`).
			WithArgs(int64(1), "sk-new", "", "", "team@example.com",
				[]byte(`["crossref"]`), "http://proxy:3128", true, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(settingsRowColumns).
				AddRow(int64(1), "sk-new", "", "", "team@example.com",
					[]byte(`["crossref"]`), "http://proxy:3128", true, now, now))

		s, err := repo.Update(context.Background(), &domain.UserSettings{
			ID:             1,
			OpenAIAPIKey:   "sk-new",
			ContactEmail:   "team@example.com",
			EnabledSources: []domain.SourceType{domain.SourceTypeCrossref},
			ProxyURL:       "http://proxy:3128",
			ProxyEnabled:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, "sk-new", s.OpenAIAPIKey)
		assert.True(t, s.ProxyEnabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for a missing row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgSettingsRepository(mock)

		mock.ExpectQuery(`UPDATE user_settings SET`).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Update(context.Background(), &domain.UserSettings{ID: 42})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
