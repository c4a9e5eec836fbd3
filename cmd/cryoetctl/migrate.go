package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/cryoetdb/cryoetdb/pkg/db"
)

// migrateLogger adapts slog to golang-migrate's Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool {
	return false
}

func openMigrate(dbURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	m, err := createMigrateInstance(dbURL)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("failed to create migrate instance: %w", err))
	}
	m.Log = migrateLogger{logger: logger}
	return m, nil
}

// migrateUp applies all pending migrations and returns the resulting version.
func migrateUp(dbURL string, logger *slog.Logger) (uint, error) {
	m, err := openMigrate(dbURL, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = m.Close() }()

	from, dirty, _ := m.Version()
	logger.Info("applying migrations", "source", migrationSource(), "version", from, "dirty", dirty)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, err
	}
	return version, nil
}

func migrateDown(dbURL string, steps int, logger *slog.Logger) (uint, error) {
	m, err := openMigrate(dbURL, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Steps(-steps); err != nil {
		return 0, fmt.Errorf("rollback failed: %w", err)
	}

	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	return version, err
}

// migrationStatus returns the current version; ok is false when no
// migration has been applied.
func migrationStatus(dbURL string, logger *slog.Logger) (version uint, dirty bool, ok bool, err error) {
	m, err := openMigrate(dbURL, logger)
	if err != nil {
		return 0, false, false, err
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return version, dirty, true, nil
}
