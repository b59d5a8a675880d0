// Package repository persists the single user_settings row in PostgreSQL.
//
// Implementations take a DBTX, so the same repository runs against the
// service pool, a pgx.Tx or a pgxmock pool in tests. A missing row is
// reported as domain.ErrNotFound; any other driver error is wrapped.
package repository

import (
	"github.com/helixir/paper-search-service/internal/database"
)

// DBTX is database.DBTX, re-exported so callers only import this package.
type DBTX = database.DBTX
