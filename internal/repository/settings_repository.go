package repository

import (
	"context"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SettingsRepository persists the single user_settings record.
type SettingsRepository interface {
	// Get returns the settings row with the lowest id.
	// Returns domain.ErrNotFound if the table is empty.
	Get(ctx context.Context) (*domain.UserSettings, error)

	// Create inserts s and returns the stored row. A zero ID is stored as
	// domain.DefaultSettingsID. If a row with the same id already exists it
	// is returned unchanged, so concurrent first reads converge on one row.
	Create(ctx context.Context, s *domain.UserSettings) (*domain.UserSettings, error)

	// Update overwrites every column of the row identified by s.ID and
	// returns the stored row. Returns domain.ErrNotFound if no such row exists.
	Update(ctx context.Context, s *domain.UserSettings) (*domain.UserSettings, error)
}
