package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/audit"
	"github.com/cryoetdb/cryoetdb/pkg/bootstrap"
	"github.com/cryoetdb/cryoetdb/pkg/config"
	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/metrics"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
	"github.com/cryoetdb/cryoetdb/pkg/server/endpoints"
	"github.com/cryoetdb/cryoetdb/pkg/telemetry"
)

// app carries the per-invocation wiring shared by all commands.
type app struct {
	command  string
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
	audit    *audit.Logger
	closeLog func() error
	flush    func()
}

// newApp loads and validates configuration and sets up logging, error
// reporting, metrics and the audit trail.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}

	flush, err := telemetry.Init(telemetry.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     "cryoetdb@" + endpoints.Version,
	})
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	m, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	if err != nil {
		flush()
		_ = closeLog()
		return nil, err
	}

	auditLog := audit.NewLogger()
	auditLog.SetEnabled(cfg.AuditEnabled)

	return &app{
		command:  cmd.CommandPath(),
		cfg:      cfg,
		logger:   logger.With("command", cmd.Name()),
		metrics:  m,
		audit:    auditLog,
		closeLog: closeLog,
		flush:    flush,
	}, nil
}

// mustApp is newApp for commands that cannot continue without it.
func mustApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd)
	if err != nil {
		printError("%v", err)
		os.Exit(exitFailure)
	}
	return a
}

func (a *app) close() {
	a.flush()
	_ = a.closeLog()
}

// exit ends the process. A non-nil err is logged with its kind, reported
// and mapped onto the exit code.
func (a *app) exit(err error) {
	code := exitCode(err)
	if err != nil {
		kind := errorKind(err)
		a.logger.Error("command failed", "error", err, "error_kind", kind)
		if code != exitNotFound {
			telemetry.CaptureError(err, kind, a.command)
		}
		printError("%v", err)
	}
	a.close()
	os.Exit(code)
}

func (a *app) secretStore() (secrets.Store, error) {
	cfg := a.cfg
	switch cfg.SecretBackend {
	case config.BackendConjur:
		return secrets.NewConjurStore(secrets.ConjurConfig{
			URL:     cfg.ConjurURL,
			Account: cfg.ConjurAccount,
			Login:   cfg.ConjurLogin,
			APIKey:  cfg.ConjurAPIKey,
			Timeout: cfg.SecretTimeoutDuration(),
		})
	default:
		token, err := cfg.ResolvedVaultToken()
		if err != nil {
			return nil, err
		}
		return secrets.NewVaultStore(secrets.VaultConfig{
			Address:    cfg.VaultAddr,
			Mount:      cfg.VaultMount,
			AuthMethod: cfg.VaultAuthMethod,
			Token:      token,
			JWTRole:    cfg.VaultJWTRole,
			JWTFile:    cfg.VaultJWTFile,
			JWTMount:   cfg.VaultJWTMount,
			Timeout:    cfg.SecretTimeoutDuration(),
		})
	}
}

// bootstrapper returns a Bootstrapper on a store that has answered its
// health check.
func (a *app) bootstrapper(ctx context.Context) (*bootstrap.Bootstrapper, error) {
	store, err := a.secretStore()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secrets.ErrSecretStoreUnavailable, err)
	}

	log := logging.ForComponent(a.logger, "secrets")
	err = secrets.WaitReady(ctx, store, a.cfg.SecretWaitAttempts, a.cfg.SecretWaitIntervalDuration(),
		func(attempt int, err error) {
			log.Warn("secret store not ready", "attempt", attempt, "of", a.cfg.SecretWaitAttempts, "error", err)
		})
	if err != nil {
		return nil, err
	}

	return bootstrap.New(store, a.cfg.SecretPath,
		bootstrap.WithLogger(logging.ForComponent(a.logger, "bootstrap")),
		bootstrap.WithAudit(a.audit),
		bootstrap.WithMetrics(a.metrics),
	), nil
}

// credentials retrieves the stored bundle, failing with ErrNotBootstrapped
// on a fresh deployment.
func (a *app) credentials(ctx context.Context) (secrets.Bundle, error) {
	b, err := a.bootstrapper(ctx)
	if err != nil {
		return secrets.Bundle{}, err
	}
	return b.Require(ctx)
}

func (a *app) dbConfig(bundle secrets.Bundle) db.Config {
	return db.Config{
		Host:           a.cfg.DBHost,
		Port:           a.cfg.DBPort,
		SSLMode:        a.cfg.DBSSLMode,
		ConnectTimeout: a.cfg.DBConnectTimeoutDuration(),
		Credentials:    bundle,
		Debug:          a.cfg.LogLevel == "debug" || a.cfg.LogLevel == "trace",
	}
}

// connect opens the database from bundle. The caller closes it with
// db.Close. When audit persistence is on, audit events are also written
// to pipeline_audit over the same pool.
func (a *app) connect(ctx context.Context, bundle secrets.Bundle) (*gorm.DB, error) {
	database, err := db.Connect(ctx, a.dbConfig(bundle))
	if err != nil {
		return nil, err
	}
	if a.cfg.AuditPersist {
		sqlDB, err := database.DB()
		if err != nil {
			_ = db.Close(database)
			return nil, err
		}
		a.audit.SetStore(audit.NewStoreWithDB(sqlDB))
	}
	a.logger.Debug("connected to database", "host", a.cfg.DBHost, "port", a.cfg.DBPort, "database", bundle.Database)
	return database, nil
}

// pushMetrics sends the run's metrics to the configured pushgateway.
func (a *app) pushMetrics(ctx context.Context, job string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, job); err != nil {
		a.logger.Warn("failed to push metrics", "error", err)
	}
}
