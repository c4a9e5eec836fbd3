//go:build !embed_migrations

package main

import (
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const defaultMigrationsPath = "db/migrations"

func migrationsPath() string {
	if p := os.Getenv("CRYOET_MIGRATIONS_PATH"); p != "" {
		return p
	}
	return defaultMigrationsPath
}

func migrationSource() string {
	return "file://" + migrationsPath()
}

func createMigrateInstance(dbURL string) (*migrate.Migrate, error) {
	return migrate.New(migrationSource(), dbURL)
}
