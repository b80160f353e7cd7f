package db

import (
	"embed"
	"fmt"

	"chronicle-scrobbler/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

// IMPORTANT: the path is relative to THIS file's directory (internal/db).
// Match both up/down files explicitly to avoid "no matching files" during go:embed.
//
//go:embed migrations/*.up.sql migrations/*.down.sql
var migrationsFS embed.FS

// MigrateUp runs all "up" migrations bundled via go:embed.
func MigrateUp(sqlitePath string) error {
	if sqlitePath == "" {
		return fmt.Errorf("migrator: empty database path")
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrator: iofs init: %w", err)
	}

	databaseURL := fmt.Sprintf("sqlite://file:%s?cache=shared&mode=rwc", sqlitePath)
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("migrator: create: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrator: up: %w", err)
	}

	if v, d, err := m.Version(); err == nil {
		logging.Info("DB migration version", "version", v, "dirty", d)
	}
	return nil
}
