// Package main provides a CLI tool for the settings database migrations.
//
// Usage:
//
//	migrate [-path dir] up|down|version
//	migrate [-path dir] steps N
//	migrate [-path dir] force V
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/database"
	"github.com/helixir/paper-search-service/internal/observability"
)

const connectTimeout = 30 * time.Second

var errUsage = errors.New("usage: migrate [-path dir] up|down|version|steps N|force V")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one parsed migrate action.
type command struct {
	name string
	arg  int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{name: args[0]}
	switch cmd.name {
	case "up", "down", "version":
		if len(args) != 1 {
			return command{}, errUsage
		}
	case "steps", "force":
		if len(args) != 2 {
			return command{}, errUsage
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("%s: invalid number %q", cmd.name, args[1])
		}
		if cmd.name == "steps" && n == 0 {
			return command{}, errors.New("steps: N must not be zero")
		}
		if cmd.name == "force" && n < 0 {
			return command{}, errors.New("force: V must not be negative")
		}
		cmd.arg = n
	default:
		return command{}, errUsage
	}
	return cmd, nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	migrationsPath := fs.String("path", "", "Override the migrations directory path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if *migrationsPath != "" {
		migrationDir = *migrationsPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := execute(migrator, cmd, logger); err != nil {
		return fmt.Errorf("migrate %s: %w", cmd.name, err)
	}
	logVersion(migrator, logger)
	return nil
}

func execute(m *database.Migrator, cmd command, logger zerolog.Logger) error {
	switch cmd.name {
	case "up":
		return m.Up()
	case "down":
		logger.Warn().Msg("rolling back all migrations")
		return m.Down()
	case "steps":
		logger.Info().Int("steps", cmd.arg).Msg("running migration steps")
		return m.Steps(cmd.arg)
	case "force":
		logger.Warn().Int("version", cmd.arg).Msg("forcing migration version")
		return m.Force(cmd.arg)
	}
	return nil
}

func logVersion(m *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
}
