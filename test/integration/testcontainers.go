package integration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/db"
	pipelinedb "github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

// Credentials of the Postgres container. The bootstrap scenarios provision
// exactly these into the fake Vault.
const (
	dbUser     = "cryo"
	dbPassword = "cryo-secret"
	dbName     = "cryoet"
)

// TestContext holds all the resources needed for integration tests
type TestContext struct {
	Container testcontainers.Container
	DBHost    string
	DBPort    int
	// Admin is a connection for test setup and assertions
	Admin *gorm.DB
	Vault *FakeVault
}

// NewTestContext starts a PostgreSQL testcontainer, applies the embedded
// migrations and starts a fake Vault.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, _ := strconv.Atoi(mapped.Port())

	tc := &TestContext{
		Container: pgContainer,
		DBHost:    host,
		DBPort:    port,
	}

	cfg := tc.DBConfig(secrets.Bundle{Username: dbUser, Password: dbPassword, Database: dbName})
	if err := runMigrations(cfg.MigrationURL()); err != nil {
		tc.Close(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tc.Admin, err = pipelinedb.Connect(ctx, cfg)
	if err != nil {
		tc.Close(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	tc.Vault = NewFakeVault()
	return tc, nil
}

// DBConfig returns the connection settings of the container for bundle.
func (tc *TestContext) DBConfig(bundle secrets.Bundle) pipelinedb.Config {
	return pipelinedb.Config{
		Host:           tc.DBHost,
		Port:           tc.DBPort,
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
		Credentials:    bundle,
	}
}

// VaultStore returns a secret store client for the fake Vault.
func (tc *TestContext) VaultStore() (*secrets.VaultStore, error) {
	return secrets.NewVaultStore(secrets.VaultConfig{
		Address: tc.Vault.URL,
		Token:   "root",
		Timeout: 5 * time.Second,
	})
}

// ResetDatabase removes all pipeline rows between scenarios.
func (tc *TestContext) ResetDatabase() error {
	return tc.Admin.Exec("TRUNCATE tomograms, annotations, pipeline_audit RESTART IDENTITY CASCADE").Error
}

// Close cleans up all test resources
func (tc *TestContext) Close(ctx context.Context) {
	if tc.Vault != nil {
		tc.Vault.Close()
	}
	if tc.Admin != nil {
		_ = pipelinedb.Close(tc.Admin)
	}
	if tc.Container != nil {
		_ = tc.Container.Terminate(ctx)
	}
}

// runMigrations applies the embedded migrations with golang-migrate
func runMigrations(dbURL string) error {
	migrationsFS, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return err
	}
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance for %s: %w", redact(dbURL), err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func redact(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// envOf returns a lookup over a fixed environment.
func envOf(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}
