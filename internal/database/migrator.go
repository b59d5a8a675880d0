package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

const migrationsTable = "schema_migrations"

// Migrator applies the SQL files under a migrations directory to the
// user_settings schema.
type Migrator struct {
	m      *migrate.Migrate
	conn   *sql.DB
	logger zerolog.Logger
}

// NewMigrator opens a golang-migrate instance on top of db's pool.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, errors.New("migrator: database handle is nil")
	case db.pool == nil:
		return nil, errors.New("migrator: database pool is not open")
	case dir == "":
		return nil, errors.New("migrator: no migrations directory given")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrator: migrations directory: %w", err)
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrator: postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrator: open source %q: %w", dir, err)
	}

	return &Migrator{
		m:      m,
		conn:   conn,
		logger: logger.With().Str("component", "migrator").Str("dir", dir).Logger(),
	}, nil
}

// apply runs step and treats "nothing to do" outcomes as success.
func (g *Migrator) apply(op string, step func() error) error {
	g.logger.Info().Str("op", op).Msg("migration started")
	err := step()
	switch {
	case err == nil:
		g.logger.Info().Str("op", op).Msg("migration finished")
		return nil
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		// ErrNotExist is what Steps reports when it runs past the last file.
		g.logger.Info().Str("op", op).Msg("schema already at target version")
		return nil
	default:
		return fmt.Errorf("migrator: %s: %w", op, err)
	}
}

// Up applies every pending migration.
func (g *Migrator) Up() error {
	return g.apply("up", g.m.Up)
}

// Down reverts every applied migration.
func (g *Migrator) Down() error {
	g.logger.Warn().Msg("reverting all migrations")
	return g.apply("down", g.m.Down)
}

// Steps moves n migrations forward, or backward when n is negative.
func (g *Migrator) Steps(n int) error {
	return g.apply(fmt.Sprintf("steps %d", n), func() error { return g.m.Steps(n) })
}

// Version reports the applied version and whether the last run left it dirty.
func (g *Migrator) Version() (uint, bool, error) {
	return g.m.Version()
}

// Force records version as applied without running anything.
func (g *Migrator) Force(version int) error {
	g.logger.Warn().Int("version", version).Msg("forcing schema version")
	if err := g.m.Force(version); err != nil {
		return fmt.Errorf("migrator: force %d: %w", version, err)
	}
	return nil
}

// Close releases the migration source and the sql.DB wrapper.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	connErr := g.conn.Close()
	return errors.Join(srcErr, dbErr, connErr)
}
