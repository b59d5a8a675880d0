//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/paper-search-service/internal/domain"
)

// startPostgres runs a disposable PostgreSQL container with the schema migrated.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paper_search_test"),
		tcpostgres.WithUsername("papersearch"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := migrate.New("file://../../migrations", dsn)
	require.NoError(t, err)
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migration failed: %v", err)
	}
	srcErr, dbErr := migrator.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPgSettingsRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := NewPgSettingsRepository(startPostgres(t))
	ctx := context.Background()

	t.Run("Get on an empty table returns not found", func(t *testing.T) {
		_, err := repo.Get(ctx)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Create and Get roundtrip", func(t *testing.T) {
		created, err := repo.Create(ctx, &domain.UserSettings{
			CoreAPIKey:     "core-key",
			ContactEmail:   "athena@example.com",
			EnabledSources: domain.DefaultEnabledSources(),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultSettingsID, created.ID)

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "core-key", got.CoreAPIKey)
		assert.Equal(t, "", got.OpenAIAPIKey)
		assert.Equal(t, domain.DefaultEnabledSources(), got.EnabledSources)
	})

	t.Run("second Create returns the existing row", func(t *testing.T) {
		again, err := repo.Create(ctx, &domain.UserSettings{CoreAPIKey: "other"})
		require.NoError(t, err)
		assert.Equal(t, "core-key", again.CoreAPIKey)
	})

	t.Run("Update clears and sets columns", func(t *testing.T) {
		current, err := repo.Get(ctx)
		require.NoError(t, err)

		current.CoreAPIKey = ""
		current.ProxyURL = "http://proxy.local:8080"
		current.ProxyEnabled = true
		current.EnabledSources = []domain.SourceType{domain.SourceTypeArXiv}

		updated, err := repo.Update(ctx, current)
		require.NoError(t, err)
		assert.Equal(t, "", updated.CoreAPIKey)
		assert.Equal(t, "http://proxy.local:8080", updated.ProxyURL)
		assert.True(t, updated.ProxyEnabled)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeArXiv}, updated.EnabledSources)
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})
}
